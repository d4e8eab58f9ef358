package session

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/cart"
)

var _ cart.Session = (*Session)(nil)

// Session wraps a gorilla session with string keys and an explicit dirty
// flag. It is written back only when MarkModified was called.
type Session struct {
	raw      *sessions.Session
	modified bool
}

// Wrap adapts a gorilla session.
func Wrap(raw *sessions.Session) *Session {
	return &Session{raw: raw}
}

func (s *Session) Get(key string) (any, bool) {
	v, ok := s.raw.Values[key]
	return v, ok
}

func (s *Session) Set(key string, value any) {
	s.raw.Values[key] = value
}

func (s *Session) Delete(key string) {
	delete(s.raw.Values, key)
}

func (s *Session) MarkModified() {
	s.modified = true
}

// Modified reports whether the session must be saved.
func (s *Session) Modified() bool {
	return s.modified
}

// ID returns the session id, empty for a session that was never saved.
func (s *Session) ID() string {
	return s.raw.ID
}

type ctxKey struct{}

// FromContext returns the request session installed by Middleware.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// Middleware loads the named session for every request and saves it when
// modified. The save happens right before the response header is written so
// the session cookie can still be set.
func Middleware(store sessions.Store, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lg := zctx.From(r.Context())

			raw, err := store.Get(r, name)
			if err != nil {
				lg.Warn("Session load failed, starting a new one", zap.Error(err))
			}
			if raw == nil {
				raw = sessions.NewSession(store, name)
				raw.IsNew = true
			}
			s := Wrap(raw)
			r = r.WithContext(NewContext(r.Context(), s))

			sw := &saveWriter{ResponseWriter: w, r: r, store: store, s: s}
			next.ServeHTTP(sw, r)
			sw.save()
		})
	}
}

// saveWriter persists a modified session before the first header write.
type saveWriter struct {
	http.ResponseWriter
	r     *http.Request
	store sessions.Store
	s     *Session
	once  sync.Once
}

func (w *saveWriter) save() {
	w.once.Do(func() {
		if !w.s.Modified() {
			return
		}
		if err := w.store.Save(w.r, w.ResponseWriter, w.s.raw); err != nil {
			zctx.From(w.r.Context()).Error("Session save failed", zap.Error(err))
		}
	})
}

func (w *saveWriter) WriteHeader(code int) {
	w.save()
	w.ResponseWriter.WriteHeader(code)
}

func (w *saveWriter) Write(b []byte) (int, error) {
	w.save()
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *saveWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
