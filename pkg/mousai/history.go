package mousai

import (
	"sort"
	"strings"

	"github.com/xrash/smetrics"
)

// searchThreshold is the minimum Jaro-Winkler similarity for a fuzzy hit.
const searchThreshold = 0.85

// History is the most-recent-first list of recognized songs, unique by
// SongLink. It is not safe for concurrent use; the controller loop owns it.
type History struct {
	settings Settings
	songs    []Song
}

func NewHistory(settings Settings) *History {
	return &History{settings: settings}
}

// Load replaces the in-memory list with the persisted one.
func (h *History) Load() ([]Song, error) {
	songs, err := h.settings.History()
	if err != nil {
		return nil, err
	}
	h.songs = dedupe(songs)
	return h.Songs(), nil
}

// InsertFront drops any entry with the same SongLink, then prepends song.
func (h *History) InsertFront(song Song) {
	out := make([]Song, 0, len(h.songs)+1)
	out = append(out, song)
	for _, s := range h.songs {
		if s.SongLink != song.SongLink {
			out = append(out, s)
		}
	}
	h.songs = out
}

// Remove deletes the entry with the given link and reports whether it existed.
func (h *History) Remove(link string) bool {
	for i, s := range h.songs {
		if s.SongLink == link {
			h.songs = append(h.songs[:i:i], h.songs[i+1:]...)
			return true
		}
	}
	return false
}

func (h *History) Clear() {
	h.songs = nil
}

func (h *History) Save() error {
	return h.settings.SetHistory(h.Songs())
}

// Songs returns a copy of the current list.
func (h *History) Songs() []Song {
	out := make([]Song, len(h.songs))
	copy(out, h.songs)
	return out
}

func (h *History) Len() int {
	return len(h.songs)
}

type scoredSong struct {
	song  Song
	score float64
}

// Search ranks songs whose title or artist resembles query. Substring hits
// score highest; otherwise each word is compared with Jaro-Winkler. An empty
// query returns everything.
func (h *History) Search(query string) []Song {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return h.Songs()
	}

	var hits []scoredSong
	for _, s := range h.songs {
		if score := matchScore(q, s); score >= searchThreshold {
			hits = append(hits, scoredSong{song: s, score: score})
		}
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})

	out := make([]Song, len(hits))
	for i, hit := range hits {
		out[i] = hit.song
	}
	return out
}

func matchScore(q string, s Song) float64 {
	title := strings.ToLower(s.Title)
	artist := strings.ToLower(s.Artist)

	if strings.Contains(title, q) || strings.Contains(artist, q) {
		// prefer the field the query starts
		if strings.HasPrefix(title, q) || strings.HasPrefix(artist, q) {
			return 2
		}
		return 1.5
	}

	best := 0.0
	candidates := append([]string{title, artist}, strings.Fields(title+" "+artist)...)
	for _, c := range candidates {
		if score := smetrics.JaroWinkler(q, c, 0.7, 4); score > best {
			best = score
		}
	}
	return best
}

func dedupe(songs []Song) []Song {
	seen := make(map[string]bool, len(songs))
	out := make([]Song, 0, len(songs))
	for _, s := range songs {
		if seen[s.SongLink] {
			continue
		}
		seen[s.SongLink] = true
		out = append(out, s)
	}
	return out
}
