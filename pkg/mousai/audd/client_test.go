package audd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/himanishpuri/mousai/pkg/logger"
	"github.com/himanishpuri/mousai/pkg/mousai"
)

func writeClip(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.ogg")
	if err := os.WriteFile(path, []byte("OggS fake audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testClient(endpoint string) *Client {
	c := NewClient(endpoint)
	cfg := logger.DefaultConfig()
	cfg.Output = io.Discard
	c.Log = logger.New(cfg)
	return c
}

// apiServer answers every upload with body.
func apiServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIdentifyNullResultIsNoMatch(t *testing.T) {
	srv := apiServer(t, `{"status":"success","result":null}`)

	got := testClient(srv.URL).Identify(context.Background(), writeClip(t), "token")
	if got.Kind != mousai.NoMatch {
		t.Errorf("Kind = %v, want NoMatch (%+v)", got.Kind, got)
	}
}

func TestIdentifyEmptyOrAbsentResultIsNoMatch(t *testing.T) {
	for _, body := range []string{`{"status":"success"}`, `{"status":"success","result":{}}`} {
		srv := apiServer(t, body)
		got := testClient(srv.URL).Identify(context.Background(), writeClip(t), "token")
		if got.Kind != mousai.NoMatch {
			t.Errorf("%s: Kind = %v, want NoMatch", body, got.Kind)
		}
	}
}

func TestIdentifyErrorStatus(t *testing.T) {
	srv := apiServer(t, `{"status":"error","error":{"error_message":"x"}}`)

	got := testClient(srv.URL).Identify(context.Background(), writeClip(t), "token")
	if got.Kind != mousai.Failed || got.Reason != "x" {
		t.Errorf("got %+v, want Failed(x)", got)
	}
	if got.Song != nil {
		t.Error("Failed result carries a song")
	}
}

func TestIdentifyErrorCodes(t *testing.T) {
	tests := []struct {
		code int
		want mousai.ErrorKind
	}{
		{900, mousai.ErrorInvalidToken},
		{901, mousai.ErrorLimitReached},
		{300, mousai.ErrorFingerprint},
		{19, mousai.ErrorOther},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			srv := apiServer(t, fmt.Sprintf(`{"status":"error","error":{"error_code":%d,"error_message":"code %d"}}`, tt.code, tt.code))

			got := testClient(srv.URL).Identify(context.Background(), writeClip(t), "token")
			if got.Kind != mousai.Failed || got.Code != tt.code || got.ErrorKind != tt.want {
				t.Errorf("got %+v, want code %d kind %v", got, tt.code, tt.want)
			}
			if got.Reason != fmt.Sprintf("code %d", tt.code) {
				t.Errorf("reason = %q", got.Reason)
			}
		})
	}
}

func TestIdentifyConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	got := testClient(url).Identify(context.Background(), writeClip(t), "token")
	if got.Kind != mousai.Failed || got.ErrorKind != mousai.ErrorTransport {
		t.Fatalf("got %+v, want transport failure", got)
	}
	if !strings.HasPrefix(got.Reason, "Connection Error: ") {
		t.Errorf("reason %q lacks the connection error prefix", got.Reason)
	}
	if !strings.Contains(got.Reason, strings.TrimPrefix(url, "http://")) {
		t.Errorf("reason %q does not include the underlying error", got.Reason)
	}
}

func TestIdentifyMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "<html>bad gateway</html>")
	}))
	defer srv.Close()

	got := testClient(srv.URL).Identify(context.Background(), writeClip(t), "token")
	if got.Kind != mousai.Failed || !strings.Contains(got.Reason, "Connection Error") {
		t.Errorf("got %+v", got)
	}

	srv2 := apiServer(t, `{"status":`)
	got = testClient(srv2.URL).Identify(context.Background(), writeClip(t), "token")
	if got.Kind != mousai.Failed || got.ErrorKind != mousai.ErrorTransport {
		t.Errorf("truncated JSON gave %+v", got)
	}
}

func TestIdentifyMissingFile(t *testing.T) {
	got := testClient("http://127.0.0.1:1/").Identify(context.Background(), filepath.Join(t.TempDir(), "nope.ogg"), "token")
	if got.Kind != mousai.Failed {
		t.Errorf("got %+v", got)
	}
}

func TestIdentifyMissingRequiredField(t *testing.T) {
	srv := apiServer(t, `{"status":"success","result":{"title":"T","artist":"A"}}`)

	got := testClient(srv.URL).Identify(context.Background(), writeClip(t), "token")
	if got.Kind != mousai.Failed || got.ErrorKind != mousai.ErrorMalformed {
		t.Errorf("got %+v, want malformed failure", got)
	}
}

func TestIdentifyMatch(t *testing.T) {
	var form struct {
		token, ret, file, name string
	}

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/song", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html><script>
var x = 1;
window.tracks = [{"title":"Warriors","sample":{"src":"https://audio.example/preview.m4a"}}];
</script></html>`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form.token = r.FormValue("api_token")
		form.ret = r.FormValue("return")
		f, hdr, err := r.FormFile("file")
		if err == nil {
			data, _ := io.ReadAll(f)
			form.file = string(data)
			form.name = hdr.Filename
		}
		fmt.Fprintf(w, `{"status":"success","result":{
			"title":"Warriors","artist":"Imagine Dragons","song_link":"%s/song",
			"apple_music":{"url":"https://music.apple.com/x"},
			"spotify":{"album":{"images":[{"url":"big"},{"url":"medium"},{"url":"small"}]},
			"external_urls":{"spotify":"https://open.spotify.com/track/x"}}}}`, srv.URL)
	})

	got := testClient(srv.URL+"/").Identify(context.Background(), writeClip(t), "secret")
	if got.Kind != mousai.Matched || got.Song == nil {
		t.Fatalf("got %+v, want a match", got)
	}

	if form.token != "secret" || form.ret != ReturnProviders || form.file != "OggS fake audio" || form.name != "clip.ogg" {
		t.Errorf("unexpected upload: %+v", form)
	}

	s := got.Song
	if s.Title != "Warriors" || s.Artist != "Imagine Dragons" || s.SongLink != srv.URL+"/song" {
		t.Errorf("song = %+v", s)
	}
	if s.PreviewURL != "https://audio.example/preview.m4a" {
		t.Errorf("preview = %q", s.PreviewURL)
	}
	if s.ArtworkURL != "small" {
		t.Errorf("artwork = %q, want the third image", s.ArtworkURL)
	}
	providers := map[string]string{}
	for _, l := range s.ExternalLinks {
		providers[l.Provider] = l.URL
	}
	if providers["spotify"] != "https://open.spotify.com/track/x" || providers["apple_music"] != "https://music.apple.com/x" {
		t.Errorf("links = %+v", s.ExternalLinks)
	}
	if !strings.Contains(providers["youtube"], "search_query=Imagine+Dragons+Warriors") {
		t.Errorf("youtube link = %q", providers["youtube"])
	}
	if s.RecognizedAt.IsZero() {
		t.Error("RecognizedAt not set")
	}
}

func TestIdentifyMatchWithoutPreviewOrArtwork(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/song", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":"success","result":{"title":"T","artist":"A","song_link":"%s/song",
			"spotify":{"album":{"images":[{"url":"only"}]}}}}`, srv.URL)
	})

	got := testClient(srv.URL+"/").Identify(context.Background(), writeClip(t), "token")
	if got.Kind != mousai.Matched {
		t.Fatalf("got %+v, want match", got)
	}
	if got.Song.PreviewURL != "" || got.Song.ArtworkURL != "" {
		t.Errorf("expected no preview and no artwork, got %+v", got.Song)
	}
}

func TestExtractPreview(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    string
		wantErr bool
	}{
		{"plain", `tracks = [{"sample":{"src":"a.m4a"}}];`, "a.m4a", false},
		{"trailing statements", `tracks = [{"sample":{"src":"b.m4a"}}]; var y = 2;`, "b.m4a", false},
		{"no pattern", `<html></html>`, "", true},
		{"bad json", `tracks = [{"sample":;`, "", true},
		{"empty array", `tracks = [];`, "", true},
		{"no sample", `tracks = [{"title":"x"}];`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractPreview([]byte(tt.page))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMockIsDeterministic(t *testing.T) {
	a := Mock{}.Identify(context.Background(), "", "")
	b := Mock{}.Identify(context.Background(), "", "")

	if a.Kind != mousai.Matched || b.Kind != mousai.Matched {
		t.Fatalf("mock did not match: %+v", a)
	}
	if a.Song.SongLink != b.Song.SongLink || a.Song.Title != "Warriors" {
		t.Errorf("mock results differ: %+v vs %+v", a.Song, b.Song)
	}
	if !strings.HasSuffix(a.Song.ArtworkURL, "67407947517062a649d86e06c7fa17670f7f09eb") {
		t.Errorf("artwork = %q", a.Song.ArtworkURL)
	}
}

func TestMockHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := Mock{Delay: 1e9}.Identify(ctx, "", "")
	if got.Kind != mousai.Failed {
		t.Errorf("got %+v, want failure on cancelled context", got)
	}
}
