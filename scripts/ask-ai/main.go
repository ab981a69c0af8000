package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"CyberGuard/internal/ai/aiservice"
	"CyberGuard/internal/logging"
)

func main() {
	// 1. Parse command-line flags
	address := flag.String("addr", "localhost:50052", "The AI service address")
	prompt := flag.String("prompt", "", "The text to send to the AI model")
	timeout := flag.Duration("timeout", 60*time.Second, "Request timeout")
	flag.Parse()

	// 2. If prompt is empty, read it from non-flag arguments
	if *prompt == "" {
		if flag.NArg() == 0 {
			logging.Fatal().Msg("A prompt is required. Use -prompt or provide it as an argument.")
		}
		*prompt = strings.Join(flag.Args(), " ")
	}

	// 3. Connect to the gRPC server
	client, err := aiservice.Dial(*address)
	if err != nil {
		logging.Fatal().Err(err).Msg("Did not connect")
	}
	defer client.Close()

	// 4. Call the RPC
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	logging.Info().Msg("Sending prompt to AI...")
	answer, err := client.AnalyzeText(ctx, *prompt)
	if err != nil {
		logging.Fatal().Err(err).Msg("AnalyzeText failed")
	}
	fmt.Println(answer)
}
