// Command collab_probe joins a drawing as a headless collaborator and logs
// presence and remote changes. With -draw it adds a rectangle every few
// seconds to exercise broadcast and autosave.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drawboard/internal/collabclient"
	"drawboard/internal/element"
	"drawboard/internal/identity"
	"drawboard/internal/logger"
	"drawboard/internal/protocol"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "server base url")
	drawingID := flag.String("drawing", "", "drawing id")
	token := flag.String("token", "", "access token")
	share := flag.String("share-token", "", "share token")
	perm := flag.String("permission", "view", "session permission: view or edit")
	name := flag.String("name", "", "display name (random if empty)")
	draw := flag.Bool("draw", false, "periodically add elements")
	flag.Parse()

	if *drawingID == "" {
		flag.Usage()
		os.Exit(2)
	}

	zl, err := logger.New("debug", "console")
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync()
	sugar := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := collabclient.Open(ctx, collabclient.Config{
		ServerURL:  *server,
		DrawingID:  *drawingID,
		Token:      *token,
		ShareToken: *share,
		User:       identity.New(identity.Preference{Name: *name}),
		Permission: protocol.Permission(*perm),
		OnSaveError: func(err error) {
			sugar.Warnf("[Probe] Save failed: %v", err)
		},
		OnPresence: func(roster []protocol.Participant) {
			for _, p := range roster {
				sugar.Infof("[Probe] participant %s (%s) active=%v", p.Name, p.SocketID, p.IsActive)
			}
		},
		Logger: sugar,
	})
	if err != nil {
		sugar.Fatalf("Failed to open session: %v", err)
	}
	defer sess.Close()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	x := 0.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sugar.Infof("[Probe] state=%s elements=%d collaborators=%d",
				sess.State(), len(element.FilterVisible(sess.Scene().Elements())), len(sess.Collaborators()))
			if *draw && sess.Permission().CanEdit() {
				el := element.Element{Type: "rectangle"}
				_ = el.Set("x", x)
				_ = el.Set("y", 0)
				_ = el.Set("width", 40)
				_ = el.Set("height", 40)
				sess.Scene().Add(el)
				sess.MoveCursor(protocol.Pointer{X: x, Y: 0}, "up")
				x += 50
			}
		}
	}
}
