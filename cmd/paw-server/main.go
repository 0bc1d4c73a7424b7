// Command paw-server is the development server for browser-based
// playground UIs: it lists discovered endpoint schema documents at
// /endpoints and serves static assets from the working directory.
package main

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joeshaw/envdecode"
)

type Config struct {
	Addr         string `env:"PAW_SERVER_ADDR,default=:8000"`
	EndpointsDir string `env:"PAW_ENDPOINTS_DIR,default=endpoints"`
	StaticDir    string `env:"PAW_STATIC_DIR,default=."`
}

func main() {
	var cfg Config
	_ = envdecode.Decode(&cfg)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/endpoints", listEndpoints(cfg.EndpointsDir))
	r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("serving at http://localhost%s", cfg.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("server stopped")
}

// listEndpoints walks the endpoints directory on every request so newly
// dropped schema documents appear without a restart.
func listEndpoints(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		paths := []string{}
		root := os.DirFS(dir)
		if _, err := os.Stat(dir); err == nil {
			fs.WalkDir(root, ".", func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return nil
				}
				if !d.IsDir() && d.Name() == "openapi.json" {
					paths = append(paths, path.Join(dir, p))
				}
				return nil
			})
		}
		writeJSON(w, http.StatusOK, paths)
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, "encode failure", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
