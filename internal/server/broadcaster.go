package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ecosim/internal/ecology"
)

const (
	defaultBaseInterval = 250 * time.Millisecond
	minTickInterval     = 10 * time.Millisecond
	maxTickInterval     = 10 * time.Second
)

// Frame is one snapshot pushed to clients and served by /api/state.
type Frame struct {
	Type        string                  `json:"type"`
	Tick        int                     `json:"tick"`
	Height      int                     `json:"height"`
	Width       int                     `json:"width"`
	Seed        int64                   `json:"seed"`
	Counts      ecology.Counts          `json:"counts"`
	Cells       []ecology.CellOccupancy `json:"cells"`
	Births      int                     `json:"births"`
	Deaths      int                     `json:"deaths"`
	Saturations int                     `json:"saturations"`
	Paused      bool                    `json:"paused"`
	Speed       float64                 `json:"speed"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type Options struct {
	// BaseInterval is the tick interval at speed 1; zero means 250ms.
	BaseInterval time.Duration
	StartPaused  bool
}

// Broadcaster owns one model, advances it on a ticker and pushes a frame to
// every connected client after each change. All model access goes through mu.
type Broadcaster struct {
	mu          sync.Mutex
	cfg         ecology.Config
	model       *ecology.Model
	saturations int
	paused      bool
	speed       float64

	baseInterval time.Duration
	updateChan   chan struct{}

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex
}

func NewBroadcaster(cfg ecology.Config, opts Options) (*Broadcaster, error) {
	m, err := ecology.New(cfg)
	if err != nil {
		return nil, err
	}
	base := opts.BaseInterval
	if base <= 0 {
		base = defaultBaseInterval
	}
	return &Broadcaster{
		cfg:          cfg,
		model:        m,
		paused:       opts.StartPaused,
		speed:        1.0,
		baseInterval: base,
		updateChan:   make(chan struct{}, 1),
		clients:      make(map[*websocket.Conn]*sync.Mutex),
	}, nil
}

// Run advances the model until ctx is done. Speed changes reset the ticker.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case <-ticker.C:
			if _, advanced := b.advance(false); advanced {
				b.broadcastFrame()
			}
		case <-b.updateChan:
			interval := b.interval()
			ticker.Reset(interval)
			log.Printf("tick interval reset to %v (speed: %.2fx)", interval, b.Speed())
		}
	}
}

// Frame snapshots the current model state.
func (b *Broadcaster) Frame() Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frameLocked()
}

// Step advances exactly one tick, even while paused.
func (b *Broadcaster) Step() Frame {
	frame, _ := b.advance(true)
	b.broadcastFrame()
	return frame
}

func (b *Broadcaster) Pause() {
	b.setPaused(true)
}

func (b *Broadcaster) Resume() {
	b.setPaused(false)
}

func (b *Broadcaster) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

func (b *Broadcaster) SetSpeed(multiplier float64) error {
	if multiplier <= 0 {
		return fmt.Errorf("speed multiplier must be positive, got %v", multiplier)
	}
	b.mu.Lock()
	b.speed = multiplier
	b.mu.Unlock()

	select {
	case b.updateChan <- struct{}{}:
	default:
	}
	b.broadcastFrame()
	return nil
}

func (b *Broadcaster) Speed() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speed
}

// Reset rebuilds the model from the configured populations. A non-nil seed
// replaces the configured seed for this and later resets.
func (b *Broadcaster) Reset(seed *int64) error {
	b.mu.Lock()
	cfg := b.cfg
	if seed != nil {
		cfg.Seed = *seed
	}
	m, err := ecology.New(cfg)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	b.cfg = cfg
	b.model = m
	b.saturations = 0
	b.mu.Unlock()

	b.broadcastFrame()
	return nil
}

func (b *Broadcaster) Register(conn *websocket.Conn) {
	b.clientsMu.Lock()
	b.clients[conn] = &sync.Mutex{}
	n := len(b.clients)
	b.clientsMu.Unlock()
	log.Printf("client connected (%d total)", n)

	b.sendTo(conn, b.Frame())
}

func (b *Broadcaster) Unregister(conn *websocket.Conn) {
	b.clientsMu.Lock()
	_, ok := b.clients[conn]
	delete(b.clients, conn)
	n := len(b.clients)
	b.clientsMu.Unlock()
	if ok {
		conn.Close()
		log.Printf("client disconnected (%d remaining)", n)
	}
}

func (b *Broadcaster) Clients() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) advance(force bool) (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused && !force {
		return Frame{}, false
	}
	if err := b.model.Step(); err != nil {
		if errors.Is(err, ecology.ErrGridSaturated) {
			b.saturations++
		} else {
			log.Printf("step %d: %v", b.model.Tick(), err)
		}
	}
	return b.frameLocked(), true
}

func (b *Broadcaster) setPaused(paused bool) {
	b.mu.Lock()
	b.paused = paused
	b.mu.Unlock()
	b.broadcastFrame()
}

func (b *Broadcaster) interval() time.Duration {
	b.mu.Lock()
	speed := b.speed
	b.mu.Unlock()

	interval := time.Duration(float64(b.baseInterval) / speed)
	if interval < minTickInterval {
		interval = minTickInterval
	} else if interval > maxTickInterval {
		interval = maxTickInterval
	}
	return interval
}

func (b *Broadcaster) frameLocked() Frame {
	return Frame{
		Type:        "frame",
		Tick:        b.model.Tick(),
		Height:      b.model.Height(),
		Width:       b.model.Width(),
		Seed:        b.cfg.Seed,
		Counts:      b.model.PopulationCounts(),
		Cells:       b.model.Occupancy(),
		Births:      b.model.Births(),
		Deaths:      b.model.Deaths(),
		Saturations: b.saturations,
		Paused:      b.paused,
		Speed:       b.speed,
	}
}

func (b *Broadcaster) broadcastFrame() {
	data, err := json.Marshal(b.Frame())
	if err != nil {
		log.Println("frame marshal error:", err)
		return
	}

	var failed []*websocket.Conn
	b.clientsMu.RLock()
	for conn, mu := range b.clients {
		mu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mu.Unlock()
		if err != nil {
			log.Println("frame broadcast error:", err)
			failed = append(failed, conn)
		}
	}
	b.clientsMu.RUnlock()

	for _, conn := range failed {
		b.Unregister(conn)
	}
}

func (b *Broadcaster) sendError(conn *websocket.Conn, err error) {
	b.sendTo(conn, errorMessage{Type: "error", Error: err.Error()})
}

func (b *Broadcaster) sendTo(conn *websocket.Conn, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Println("message marshal error:", err)
		return
	}

	b.clientsMu.RLock()
	mu, ok := b.clients[conn]
	b.clientsMu.RUnlock()
	if !ok {
		return
	}
	mu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mu.Unlock()
	if err != nil {
		log.Println("send error:", err)
		b.Unregister(conn)
	}
}

func (b *Broadcaster) closeAll() {
	b.clientsMu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.clientsMu.Unlock()
	for _, conn := range conns {
		b.Unregister(conn)
	}
}
