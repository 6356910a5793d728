package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ayusman/headtrack/internal/app"
	"github.com/ayusman/headtrack/internal/config"
	"github.com/ayusman/headtrack/internal/metrics"
	"github.com/ayusman/headtrack/internal/permission"
	"github.com/ayusman/headtrack/internal/pose"
	"github.com/ayusman/headtrack/internal/server"
	"github.com/ayusman/headtrack/internal/store"
	"github.com/ayusman/headtrack/internal/tray"
)

const trayRefresh = 250 * time.Millisecond

func main() {
	metadataPath := flag.String("metadata", "headtrack.yaml", "path to the metadata file")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	dbPath := flag.String("db", "", "database path (default ~/.headtrack/headtrack.db)")
	grantCamera := flag.Bool("grant-camera", false, "grant camera access without prompting")
	noTray := flag.Bool("no-tray", false, "run without the system tray")
	flag.Parse()

	fmt.Println("Headtrack - Head Pose Tracking")

	if *dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatalf("Failed to get home directory: %v", err)
		}
		dbDir := filepath.Join(homeDir, ".headtrack")
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
		*dbPath = filepath.Join(dbDir, "headtrack.db")
	}

	st, err := store.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	meta := config.Load(*metadataPath)

	var t *tray.Tray
	var requester permission.Requester
	if *noTray {
		requester = permission.RequesterFunc(func() {
			log.Println("Camera permission required; restart with -grant-camera")
		})
	} else {
		t = tray.New()
		requester = t
	}

	a := app.New(app.Config{
		Metadata:      meta,
		Store:         st,
		Requester:     requester,
		CameraGranted: *grantCamera,
	})
	if err := a.Create(); err != nil {
		log.Fatalf("Failed to create headtrack: %v", err)
	}
	if err := a.Resume(); err != nil {
		log.Fatalf("Failed to resume headtrack: %v", err)
	}

	webDir := findWebDir()
	if webDir != "" {
		fmt.Printf("Serving static files from: %s\n", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Pose:      a,
		Preview:   a.Bridge(),
		Status:    a,
		Metrics:   metrics.Handler(a),
	})
	defer srv.Close()

	go func() {
		fmt.Printf("Starting server on %s\n", *addr)
		if err := srv.ListenAndServe(*addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if t == nil {
		<-sigCh
	} else {
		runTray(t, a, *addr, sigCh)
	}

	if err := a.Destroy(); err != nil {
		log.Printf("Shutdown: %v", err)
	}
}

// runTray wires the tray to the app and blocks until the user quits or a
// signal arrives.
func runTray(t *tray.Tray, a *app.App, addr string, sigCh <-chan os.Signal) {
	t.OnPermission(a.OnPermissionResult)
	t.OnToggle(func(running bool) {
		if running {
			if err := a.Resume(); err != nil {
				log.Printf("Resume failed: %v", err)
			}
			return
		}
		a.Pause()
	})
	t.OnPreview(func() {
		openBrowser(previewURL(addr))
	})

	var mu sync.Mutex
	var last time.Time
	cancel := a.Subscribe(func(s pose.Sample) {
		mu.Lock()
		defer mu.Unlock()
		if time.Since(last) < trayRefresh {
			return
		}
		last = time.Now()
		t.SetPose(s)
	})
	defer cancel()

	go func() {
		<-sigCh
		t.Quit()
	}()

	t.Run()
}

func previewURL(addr string) string {
	host := addr
	if len(host) > 0 && host[0] == ':' {
		host = "localhost" + host
	}
	return "http://" + host + "/api/stream"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Printf("Cannot open %s: %v", url, err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.headtrack/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".headtrack", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
