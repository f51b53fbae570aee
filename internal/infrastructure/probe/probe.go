package probe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"camwatch/pkg/tracing"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var (
	ErrInvalidURL = errors.New("invalid rtsp url")
	ErrNoMedia    = errors.New("source describes no media")
	ErrNoPackets  = errors.New("no rtp packets received")
)

// Media summarizes one track announced by the source.
type Media struct {
	Type   string   `json:"type"`
	Codecs []string `json:"codecs"`
}

// FirstPacket describes the first RTP packet received after PLAY.
type FirstPacket struct {
	Codec          string `json:"codec"`
	PayloadType    uint8  `json:"payload_type"`
	SequenceNumber uint16 `json:"sequence_number"`
	SSRC           uint32 `json:"ssrc"`
	PayloadBytes   int    `json:"payload_bytes"`
}

// Result is the outcome of a successful probe.
type Result struct {
	URL         string        `json:"url"`
	Medias      []Media       `json:"medias"`
	FirstPacket *FirstPacket  `json:"first_packet"`
	Latency     time.Duration `json:"-"`
	LatencyMS   int64         `json:"latency_ms"`
}

// Prober checks that an RTSP source answers DESCRIBE and starts sending RTP
// before the camera is handed to the decoder.
type Prober struct {
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func NewProber(timeout time.Duration, logger *zap.SugaredLogger) *Prober {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Prober{timeout: timeout, logger: logger}
}

// Probe connects over TCP, describes and plays every track, and waits for the
// first RTP packet.
func (p *Prober) Probe(ctx context.Context, rawURL string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx, span := tracing.TraceProbe(ctx, Redact(rawURL))
	defer span.End()

	result, err := p.probe(ctx, rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Infow("rtsp probe failed", "rtsp_url", Redact(rawURL), "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("rtsp.medias", len(result.Medias)),
		attribute.Int64("rtsp.latency_ms", result.LatencyMS),
	)
	p.logger.Debugw("rtsp probe succeeded", "rtsp_url", Redact(rawURL), "latency_ms", result.LatencyMS)
	return result, nil
}

func (p *Prober) probe(ctx context.Context, rawURL string) (*Result, error) {
	u, err := base.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	transport := gortsplib.TransportTCP
	client := gortsplib.Client{
		ReadTimeout:  p.timeout,
		WriteTimeout: p.timeout,
		Transport:    &transport,
	}

	start := time.Now()
	if err := client.Start(u.Scheme, u.Host); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	var closeOnce sync.Once
	closeClient := func() { closeOnce.Do(client.Close) }
	defer closeClient()
	stop := context.AfterFunc(ctx, closeClient)
	defer stop()

	desc, _, err := client.Describe(u)
	if err != nil {
		return nil, p.abortErr(ctx, "describe", err)
	}
	if len(desc.Medias) == 0 {
		return nil, ErrNoMedia
	}

	if err := client.SetupAll(desc.BaseURL, desc.Medias); err != nil {
		return nil, p.abortErr(ctx, "setup", err)
	}

	first := make(chan FirstPacket, 1)
	client.OnPacketRTPAny(func(media *description.Media, forma format.Format, pkt *rtp.Packet) {
		select {
		case first <- describePacket(forma, pkt):
		default:
		}
	})

	if _, err := client.Play(nil); err != nil {
		return nil, p.abortErr(ctx, "play", err)
	}

	select {
	case pkt := <-first:
		latency := time.Since(start)
		return &Result{
			URL:         Redact(rawURL),
			Medias:      summarize(desc),
			FirstPacket: &pkt,
			Latency:     latency,
			LatencyMS:   latency.Milliseconds(),
		}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w within %s", ErrNoPackets, p.timeout)
	}
}

func (p *Prober) abortErr(ctx context.Context, stage string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", stage, ctxErr)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

func describePacket(forma format.Format, pkt *rtp.Packet) FirstPacket {
	return FirstPacket{
		Codec:          forma.Codec(),
		PayloadType:    pkt.PayloadType,
		SequenceNumber: pkt.SequenceNumber,
		SSRC:           pkt.SSRC,
		PayloadBytes:   len(pkt.Payload),
	}
}

func summarize(desc *description.Session) []Media {
	medias := make([]Media, 0, len(desc.Medias))
	for _, m := range desc.Medias {
		codecs := make([]string, 0, len(m.Formats))
		for _, f := range m.Formats {
			codecs = append(codecs, f.Codec())
		}
		medias = append(medias, Media{Type: string(m.Type), Codecs: codecs})
	}
	return medias
}

// Redact removes credentials from an RTSP url so it can be logged.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	u.User = url.User("xxx")
	return u.String()
}
