package opsapi

import (
	"crypto/subtle"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"

	logx "pricebot/pkg/logx"
)

// PprofConfig mounts the runtime profiler under /debug/pprof.
// A non-loopback listener needs a token.
type PprofConfig struct {
	Enabled bool
	Token   string
	// Addr is the listen address; only used for the loopback check.
	Addr string
}

func mountPprof(e *echo.Echo, cfg PprofConfig, log logx.Logger) bool {
	if !cfg.Enabled {
		return false
	}
	tok := strings.TrimSpace(cfg.Token)
	if tok == "" && !isLoopbackAddr(cfg.Addr) {
		log.Error("pprof not mounted: non-loopback addr requires a token", logx.String("addr", cfg.Addr))
		return false
	}

	g := e.Group("/debug/pprof")
	if tok != "" {
		g.Use(echoMid.KeyAuthWithConfig(echoMid.KeyAuthConfig{
			KeyLookup: "header:Authorization:Bearer ,query:token",
			Validator: func(key string, _ echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(tok)) == 1, nil
			},
		}))
	}
	g.GET("/cmdline", echo.WrapHandler(http.HandlerFunc(hpprof.Cmdline)))
	g.GET("/profile", echo.WrapHandler(http.HandlerFunc(hpprof.Profile)))
	g.GET("/symbol", echo.WrapHandler(http.HandlerFunc(hpprof.Symbol)))
	g.GET("/trace", echo.WrapHandler(http.HandlerFunc(hpprof.Trace)))
	// Index serves both the listing and named profiles (heap, goroutine, ...)
	g.GET("/*", echo.WrapHandler(http.HandlerFunc(hpprof.Index)))
	log.Info("pprof mounted", logx.Bool("token_set", tok != ""))
	return true
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.Trim(host, "[]")
	if host == "" {
		// ":8080" listens on every interface
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
