// Command simulate is a local duplex test client for the realtime voice
// gateway: it streams the system microphone to a running gatewayd
// instance over the caller media-stream WebSocket and plays the
// returned agent audio back through the speakers, the way a real
// telephony provider's media stream would. Adapted from the teacher's
// cmd/agent/main.go, which drove the same malgo duplex device directly
// into an in-process orchestrator; here the orchestrator is remote and
// reached over the network, so the duplex callback only encodes/decodes
// μ-law frames and pumps them through a WebSocket connection.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gen2brain/malgo"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/lokutor-ai/voice-gateway/pkg/audio"
	"github.com/lokutor-ai/voice-gateway/pkg/codec"
	"github.com/lokutor-ai/voice-gateway/pkg/echo"
)

// sampleRate matches spec.md's 8kHz media-stream wire format directly,
// so no resampling is needed between the sound device and the gateway.
const sampleRate = 8000

type outboundMedia struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type startEvent struct {
	Event string `json:"event"`
	Start struct {
		StreamSid string `json:"streamSid"`
		CallSid   string `json:"callSid"`
	} `json:"start"`
}

type stopEvent struct {
	Event string `json:"event"`
}

type inboundEvent struct {
	Event string `json:"event"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/stream", "gatewayd media-stream WebSocket URL")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("note: no .env file found, using system environment variables")
	}

	streamSid := uuid.NewString()
	callSid := uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *serverURL, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", *serverURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	start := startEvent{Event: "start"}
	start.Start.StreamSid = streamSid
	start.Start.CallSid = callSid
	if err := wsjson.Write(ctx, conn, start); err != nil {
		log.Fatalf("send start: %v", err)
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	suppressor := echo.New(sampleRate)

	var recordMu sync.Mutex
	var recordedAgentAudio []byte

	var playbackMu sync.Mutex
	var playbackBytes []byte

	var lastPlayedMu sync.Mutex
	var lastPlayedAt time.Time

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			lastPlayedMu.Lock()
			recentlyPlaying := time.Since(lastPlayedAt) < 200*time.Millisecond
			lastPlayedMu.Unlock()

			if !recentlyPlaying || !suppressor.IsEcho(pInput) {
				payload := codec.PCMToBase64(pInput)
				out := outboundMedia{Event: "media", StreamSid: streamSid}
				out.Media.Payload = payload
				if err := wsjson.Write(ctx, conn, out); err != nil && ctx.Err() == nil {
					log.Printf("send media: %v", err)
				}
			}
		}
		if pOutput != nil {
			playbackMu.Lock()
			n := copy(pOutput, playbackBytes)
			playbackBytes = playbackBytes[n:]
			playbackMu.Unlock()

			if n > 0 {
				suppressor.RecordPlayedAudio(pOutput[:n])
				lastPlayedMu.Lock()
				lastPlayedAt = time.Now()
				lastPlayedMu.Unlock()
			}
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = sampleRate

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatal(err)
	}
	log.Println("streaming to", *serverURL, "- press Ctrl+C to stop")

	go func() {
		for {
			var msg inboundEvent
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				return
			}
			switch msg.Event {
			case "media":
				pcm := codec.Base64ToPCM(msg.Media.Payload)
				playbackMu.Lock()
				playbackBytes = append(playbackBytes, pcm...)
				playbackMu.Unlock()
				recordMu.Lock()
				recordedAgentAudio = append(recordedAgentAudio, pcm...)
				recordMu.Unlock()
			case "clear":
				playbackMu.Lock()
				playbackBytes = nil
				playbackMu.Unlock()
				suppressor.ClearBuffer()
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down")
	_ = wsjson.Write(context.Background(), conn, stopEvent{Event: "stop"})
	cancel()

	recordMu.Lock()
	wav := audio.NewWavBuffer(recordedAgentAudio, sampleRate, 1)
	recordMu.Unlock()
	recordingPath := "simulate-agent-audio.wav"
	if err := os.WriteFile(recordingPath, wav, 0o644); err != nil {
		log.Printf("write debug recording: %v", err)
	} else {
		log.Printf("wrote agent audio recording to %s", recordingPath)
	}
}
