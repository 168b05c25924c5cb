// farmgate-watch prints a farmgate zone's live status in the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/farmgate/pkg/hub"
	"github.com/teslashibe/farmgate/pkg/monitor"
)

func main() {
	addr := flag.String("addr", "localhost:5000", "farmgate dashboard host:port")
	retry := flag.Duration("retry", 2*time.Second, "Reconnect delay")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/status"}
	fmt.Printf("👀 Watching %s (Ctrl+C to exit)\n\n", u.String())

	for ctx.Err() == nil {
		if err := watch(ctx, u.String()); err != nil && ctx.Err() == nil {
			fmt.Printf("\n⚠️  %v, reconnecting in %s\n", err, *retry)
		}
		select {
		case <-ctx.Done():
		case <-time.After(*retry):
		}
	}
	fmt.Println("\n👋 Bye")
}

func watch(ctx context.Context, target string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var st monitor.Status
		env, err := hub.DecodeEnvelope(data, &st)
		if err != nil || env.Kind != hub.KindStatus {
			continue
		}
		fmt.Print("\r" + line(st) + "     ")
	}
}

func line(st monitor.Status) string {
	state := "✅ SAFE"
	if st.Intrusion {
		state = fmt.Sprintf("🚨 INTRUSION %.0fs", st.IntrusionSeconds)
	}
	if !st.Running {
		state = "⏸️  PAUSED"
	}
	camera := "📷"
	if !st.CameraOnline {
		camera = "📷❌"
	}
	return fmt.Sprintf("[%s] %s %s | regions: %d %v | frames: %d (dropped %d)",
		st.Zone, camera, state, st.Regions, st.Labels, st.FramesProcessed, st.FramesDropped)
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-addr host:port]\n", os.Args[0])
		flag.PrintDefaults()
	}
}
