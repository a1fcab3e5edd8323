package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func SetupRouter(b *Broadcaster) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", healthHandler)
	r.GET("/api/state", stateHandler(b))
	r.GET("/ws", HandleWebsocket(b))

	return r
}

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func stateHandler(b *Broadcaster) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, b.Frame())
	}
}

// ListenAndServe runs the broadcaster and the HTTP server until ctx is done,
// then shuts the server down.
func ListenAndServe(ctx context.Context, addr string, b *Broadcaster) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:    addr,
		Handler: SetupRouter(b),
	}
	go b.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		log.Println("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
