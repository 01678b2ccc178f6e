package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/you/tg-transcoder/internal/probe"
	"github.com/you/tg-transcoder/internal/profile"
	"github.com/you/tg-transcoder/internal/transcode"
)

// Developer harness: run one probe + encode against a local file, no Telegram,
// no Redis.
//
//	go run ./cmd/localtest input.mp4 720p fast mp4 out.mp4
func main() {
	if len(os.Args) != 6 {
		fmt.Println("Usage: go run ./cmd/localtest <input> <resolution> <quality> <format> <output>")
		return
	}
	in, out := os.Args[1], os.Args[5]

	p, err := profile.New(
		profile.Resolution(os.Args[2]),
		profile.Quality(os.Args[3]),
		profile.Format(os.Args[4]),
	)
	if err != nil {
		fmt.Println("bad profile:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if desc, err := probe.NewInspector(30 * time.Second).Inspect(ctx, in); err == nil {
		fmt.Printf("source: %.1fs %dx%d %s %.2ffps audio=%v\n",
			desc.DurationSec, desc.Width, desc.Height, desc.VideoCodec, desc.FPS, desc.HasAudio)
	} else {
		fmt.Println("probe:", err)
	}

	eng := transcode.NewEngine(1, 30*time.Minute)
	if err := eng.Transcode(ctx, in, p, os.Getenv("WATERMARK_TEXT"), out); err != nil {
		fmt.Println("encode failed:", err)
		os.Exit(1)
	}
	fmt.Println("Generated:", out)
}
