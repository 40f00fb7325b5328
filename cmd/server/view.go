package main

import (
	"sync"
	"time"

	"github.com/himanishpuri/mousai/pkg/mousai"
	"github.com/himanishpuri/mousai/pkg/utils"
)

// webView keeps the latest notice for polling clients and deletes uploaded
// clips once the controller is done with them.
type webView struct {
	log mousai.Logger

	mu      sync.Mutex
	state   mousai.State
	notice  *NoticeDTO
	uploads []string
}

func newWebView(log mousai.Logger) *webView {
	return &webView{log: log}
}

func (v *webView) ShowNotice(n mousai.Notice) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.notice = &NoticeDTO{Kind: n.Kind.String(), Title: n.Title, Message: n.Message, At: time.Now()}
}

func (v *webView) ShowState(s mousai.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.state = s
	if s != mousai.StateIdle {
		return
	}
	for _, path := range v.uploads {
		if err := utils.DeleteFile(path); err != nil {
			v.log.Warnf("Removing upload %s: %v", path, err)
		}
	}
	v.uploads = nil
}

func (v *webView) ShowLevel(float64) {}

// track schedules path, already handed to the controller, for deletion at
// the next return to Idle. If the controller is idle again by now it is
// done with the file and path goes right away.
func (v *webView) track(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state == mousai.StateIdle {
		if err := utils.DeleteFile(path); err != nil {
			v.log.Warnf("Removing upload %s: %v", path, err)
		}
		return
	}
	v.uploads = append(v.uploads, path)
}

func (v *webView) lastNotice() *NoticeDTO {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.notice == nil {
		return nil
	}
	n := *v.notice
	return &n
}
