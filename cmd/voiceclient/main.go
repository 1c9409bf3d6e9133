// Command voiceclient drives the voice-chat WebSocket from a terminal: it opens
// a capture, sends either a WAV file or a typed transcript, and prints what the
// server answers. Synthesized speech is saved under -out.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const chunkSize = 1024

type serverMessage struct {
	Type        string          `json:"type"`
	State       string          `json:"state"`
	IsAnalyzing bool            `json:"is_analyzing"`
	IsSpeaking  bool            `json:"is_speaking"`
	Turn        json.RawMessage `json:"turn"`
	ErrorCode   string          `json:"error_code"`
	Message     string          `json:"message"`
}

type turn struct {
	Speaker  string `json:"speaker"`
	Text     string `json:"text"`
	Analysis *struct {
		Scores struct {
			Pronunciation float64 `json:"pronunciation"`
			Grammar       float64 `json:"grammar"`
			Fluency       float64 `json:"fluency"`
		} `json:"scores"`
		Feedback    string   `json:"feedback"`
		Suggestions []string `json:"suggestions"`
	} `json:"analysis"`
}

func main() {
	host := flag.String("host", "localhost:8080", "server address")
	audioPath := flag.String("audio", "", "WAV file to stream as the utterance")
	text := flag.String("text", "Hola", "transcript to send when no audio file is given")
	language := flag.String("language", "es-ES", "language being spoken")
	outDir := flag.String("out", "audio_responses", "directory for synthesized speech")
	wait := flag.Duration("wait", 30*time.Second, "how long to wait for the tutor")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	u := url.URL{Scheme: "ws", Host: *host, Path: "/ws"}
	logger.Info("Connecting", zap.String("url", u.String()))

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatal("Failed to dial", zap.Error(err))
	}
	defer c.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	replied := make(chan struct{}, 1)
	go readLoop(c, *outDir, logger, done, replied)

	if err := sendUtterance(c, *audioPath, *text, *language, logger); err != nil {
		logger.Fatal("Failed to send utterance", zap.Error(err))
	}

	select {
	case <-replied:
		// Let the reply's speech finish streaming.
		time.Sleep(2 * time.Second)
	case <-done:
		return
	case <-interrupt:
		logger.Info("Interrupted")
	case <-time.After(*wait):
		logger.Warn("Timed out waiting for the tutor")
	}

	err = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		logger.Error("Failed to close", zap.Error(err))
		return
	}
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func sendUtterance(c *websocket.Conn, audioPath, text, language string, logger *zap.Logger) error {
	start := map[string]interface{}{"type": "listening_start", "language": language}
	if audioPath != "" {
		start["encoding"] = "LINEAR16"
	}
	if err := c.WriteJSON(start); err != nil {
		return fmt.Errorf("failed to start listening: %w", err)
	}
	time.Sleep(200 * time.Millisecond)

	if audioPath == "" {
		logger.Info("Sending transcript", zap.String("text", text))
		return c.WriteJSON(map[string]interface{}{"type": "transcript", "text": text, "is_final": true})
	}

	data, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("failed to read audio file: %w", err)
	}
	logger.Info("Streaming audio", zap.String("file", audioPath), zap.Int("bytes", len(data)))

	for offset := 0; offset < len(data); offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := c.WriteMessage(websocket.BinaryMessage, data[offset:end]); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		time.Sleep(30 * time.Millisecond)
	}

	return c.WriteJSON(map[string]string{"type": "listening_end"})
}

func readLoop(c *websocket.Conn, outDir string, logger *zap.Logger, done chan<- struct{}, replied chan<- struct{}) {
	defer close(done)

	var audioFile *os.File
	var audioBytes int
	defer func() {
		if audioFile != nil {
			audioFile.Close()
		}
	}()

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			logger.Debug("Read loop stopped", zap.Error(err))
			return
		}

		if messageType == websocket.BinaryMessage {
			audioBytes += len(message)
			if audioFile != nil {
				if _, err := audioFile.Write(message); err != nil {
					logger.Error("Failed to write speech chunk", zap.Error(err))
				}
			}
			continue
		}

		var msg serverMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("Unreadable server message", zap.ByteString("raw", message))
			continue
		}

		switch msg.Type {
		case "state":
			logger.Info("State", zap.String("state", msg.State), zap.Bool("speaking", msg.IsSpeaking))
		case "turn":
			var t turn
			if err := json.Unmarshal(msg.Turn, &t); err != nil {
				logger.Warn("Unreadable turn", zap.Error(err))
				continue
			}
			fmt.Printf("%s: %s\n", t.Speaker, t.Text)
			if t.Analysis != nil {
				fmt.Printf("  pronunciation %.1f  grammar %.1f  fluency %.1f\n",
					t.Analysis.Scores.Pronunciation, t.Analysis.Scores.Grammar, t.Analysis.Scores.Fluency)
				fmt.Printf("  %s\n", t.Analysis.Feedback)
			}
			if t.Speaker == "tutor" {
				select {
				case replied <- struct{}{}:
				default:
				}
			}
		case "speaking_start":
			audioBytes = 0
			if err := os.MkdirAll(outDir, 0755); err != nil {
				logger.Error("Failed to create output directory", zap.Error(err))
				continue
			}
			path := filepath.Join(outDir, fmt.Sprintf("%d.pcm", time.Now().UnixMilli()))
			audioFile, err = os.Create(path)
			if err != nil {
				logger.Error("Failed to create speech file", zap.Error(err))
				continue
			}
			logger.Info("Speech started", zap.String("file", path))
		case "speaking_end":
			if audioFile != nil {
				audioFile.Close()
				audioFile = nil
			}
			logger.Info("Speech ended", zap.Int("bytes", audioBytes))
		case "error":
			logger.Warn("Server error", zap.String("code", msg.ErrorCode), zap.String("message", msg.Message))
		default:
			logger.Debug("Server message", zap.String("type", msg.Type))
		}
	}
}
