// Command backendprobe exercises the remote inference API directly:
// upload a PDF, ask a question or two, release the session. Useful for
// checking credentials and connectivity without starting the web server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"pdf-ai-assistant/internal/backend"
	"pdf-ai-assistant/internal/config"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] no .env file loaded, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	pdfPath := flag.String("pdf", "", "path of the PDF to upload")
	question := flag.String("ask", "", "question to ask (repeatable via comma separation)")
	session := flag.String("session", "", "existing session to reuse instead of uploading")
	keep := flag.Bool("keep", false, "skip end_session so the session can be reused")
	timeout := flag.Duration("timeout", 2*time.Minute, "per-request timeout")

	flag.Parse()

	if *pdfPath == "" && *session == "" {
		flag.Usage()
		log.Fatal("provide -pdf to upload a document or -session to reuse one")
	}

	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.MatchCount, *timeout, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	sessionID := *session
	if *pdfPath != "" {
		sessionID = runUpload(ctx, client, *pdfPath, *session)
	}

	for _, q := range splitQuestions(*question) {
		runAsk(ctx, client, sessionID, q)
	}

	if *keep {
		log.Printf("session kept: %s", sessionID)
		return
	}
	if err := client.EndSession(ctx, sessionID); err != nil {
		log.Printf("[WARN] end_session failed: %v", err)
		return
	}
	log.Printf("session released: %s", sessionID)
}

func runUpload(ctx context.Context, client *backend.Client, path, priorSession string) string {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("cannot open %s: %v", path, err)
	}
	defer f.Close()

	started := time.Now()
	res, err := client.UploadPDF(ctx, filepath.Base(path), f, priorSession)
	if err != nil {
		log.Fatalf("upload failed: %v", err)
	}
	log.Printf("uploaded %s in %s", res.Filename, time.Since(started).Round(time.Millisecond))
	log.Printf("session: %s", res.SessionID)
	if res.Message != "" {
		log.Printf("server says: %s", res.Message)
	}
	return res.SessionID
}

func runAsk(ctx context.Context, client *backend.Client, sessionID, question string) {
	started := time.Now()
	answer, err := client.Ask(ctx, sessionID, question)
	if err != nil {
		log.Fatalf("ask failed: %v", err)
	}
	fmt.Printf("\nQ: %s\nA: %s\n(%s)\n\n", question, answer, time.Since(started).Round(time.Millisecond))
}

func splitQuestions(raw string) []string {
	var out []string
	for _, q := range strings.Split(raw, ",") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}
