// runtime-sim stands in for a media runtime.
//
// Each stdin line is sent as a final transcript. Commands:
//
//	/frame <file>   send a JPEG or PNG as the latest video frame
//	/look <text>    report a finished image call carrying text as user_msg
//	/interrupt      report that the user started talking
//	/ping           measure round-trip latency
//	/quit           disconnect
//
// Everything the agent sends back is printed. With -audio-out, audio
// chunks are appended to a file for playback with e.g.
// `ffplay -f s16le -ar 24000 -ac 1 out.pcm` (use the -sample-rate value
// when one is given).
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-voiceagent/internal/config"
	ilog "github.com/teslashibe/go-voiceagent/internal/log"
	"github.com/teslashibe/go-voiceagent/pkg/agent"
	"github.com/teslashibe/go-voiceagent/pkg/bridge"
	"github.com/teslashibe/go-voiceagent/pkg/protocol"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

func main() {
	_ = config.LoadDotEnv()

	url := flag.String("url", "ws://localhost:8080/ws/runtime", "Bridge runtime endpoint")
	room := flag.String("room", "sim", "Room name")
	participant := flag.String("participant", "sim-user", "Participant name")
	audioOut := flag.String("audio-out", "", "Append received audio to this file")
	sampleRate := flag.Int("sample-rate", 0, "Request PCM audio at this rate (0 keeps 24000)")
	logLevel := flag.String("log-level", config.String(config.EnvLogLevel, "info"), "Log level")
	flag.Parse()

	logger := ilog.Init(ilog.Options{Level: *logLevel}).With("component", "runtime-sim")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, *url, *room, *participant, *sampleRate, *audioOut); err != nil {
		logger.Error("runtime-sim failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, url, room, participant string, sampleRate int, audioOut string) error {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := bridge.Dial(dialCtx, url)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer c.Close()

	var audio io.Writer = io.Discard
	if audioOut != "" {
		f, err := os.OpenFile(audioOut, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		audio = f
	}

	if err := c.Connect(room, participant, sampleRate); err != nil {
		return err
	}
	logger.Info("connected", "url", url, "room", room)

	received := make(chan error, 1)
	go func() { received <- receive(c, audio) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-received:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(c, strings.TrimSpace(line))
			if err != nil {
				logger.Warn("command failed", "error", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(c *bridge.Client, line string) (quit bool, err error) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
		return false, nil
	case "/quit":
		return true, nil
	case "/interrupt":
		return false, c.Interrupt()
	case "/ping":
		return false, c.Ping(fmt.Sprintf("sim-%d", time.Now().UnixNano()))
	case "/look":
		return false, c.FunctionCallsFinished(protocol.FunctionCall{
			Name:      voice.ImageToolName,
			Arguments: map[string]any{agent.UserMessageArg: arg},
		})
	case "/frame":
		return false, sendFrame(c, arg)
	default:
		return false, c.Transcript(line, true)
	}
}

func sendFrame(c *bridge.Client, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	if err := c.Frame(cfg.Width, cfg.Height, format, data); err != nil {
		return err
	}
	fmt.Printf("📷 sent %s frame %dx%d (%d bytes)\n", format, cfg.Width, cfg.Height, len(data))
	return nil
}

// receive prints agent messages until the connection closes.
func receive(c *bridge.Client, audio io.Writer) error {
	var chunks, bytesIn int
	for {
		msg, err := c.Receive(0)
		if err != nil {
			return err
		}
		switch msg.Type {
		case protocol.TypeSpeechStart:
			chunks, bytesIn = 0, 0
			fmt.Println("🔊 speech start")
		case protocol.TypeAudio:
			ad, err := msg.GetAudioData()
			if err != nil {
				return err
			}
			pcm, err := ad.Decode()
			if err != nil {
				return err
			}
			chunks++
			bytesIn += len(pcm)
			if _, err := audio.Write(pcm); err != nil {
				return err
			}
		case protocol.TypeSpeechEnd:
			sd, _ := msg.GetSpeechEndData()
			interrupted := sd != nil && sd.Interrupted
			fmt.Printf("🔇 speech end (%d chunks, %d bytes, interrupted=%v)\n", chunks, bytesIn, interrupted)
		case protocol.TypeTurn:
			td, err := msg.GetTurnData()
			if err != nil {
				return err
			}
			marker := ""
			if td.Interrupted {
				marker = " [interrupted]"
			}
			if td.HasImage {
				marker += " [image]"
			}
			fmt.Printf("💬 %s: %s%s\n", td.Role, td.Text, marker)
		case protocol.TypeError:
			ed, err := msg.GetErrorData()
			if err != nil {
				return err
			}
			fmt.Printf("❌ %s: %s\n", ed.Kind, ed.Message)
		case protocol.TypePong:
			pd, err := msg.GetPongData()
			if err != nil {
				return err
			}
			fmt.Printf("🏓 pong %s (%dms)\n", pd.ID, pd.LatencyMs)
		default:
			fmt.Printf("? %s\n", msg.Type)
		}
	}
}
