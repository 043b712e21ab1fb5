// Command mockassistant serves a local assistant stream that echoes the
// audio it receives. Point the bridge's assistant.endpoint at it during
// development.
package main

import (
	"flag"
	"net/http"

	"go.uber.org/zap"

	"github.com/saker-ai/assistant-bridge/internal/mockassistant"
	"github.com/saker-ai/assistant-bridge/pkg/assistant"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9090", "listen address")
	reject := flag.String("reject", "", "answer every turn with this error message instead of echoing")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	var script mockassistant.Script = mockassistant.Echo
	if *reject != "" {
		script = mockassistant.Reject(3, *reject)
	}

	mux := http.NewServeMux()
	mux.Handle(assistant.DefaultPath, mockassistant.New(script, logger))
	logger.Info("mock assistant listening", zap.String("addr", *addr), zap.String("path", assistant.DefaultPath))
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Fatal("mock assistant stopped", zap.Error(err))
	}
}
