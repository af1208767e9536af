package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	productService = "product-service"
	cartService    = "cart-service"
)

// ServiceResolver is implemented by discovery.ConsulClient.
type ServiceResolver interface {
	GetServiceURL(serviceName string) (string, error)
}

// ServiceCatalog lists every service registered with discovery.
type ServiceCatalog interface {
	GetAllServices() (map[string][]string, error)
}

type Gateway struct {
	resolver  ServiceResolver
	fallbacks map[string]string
	logger    *zap.Logger

	mutex    sync.RWMutex
	proxies  map[string]*httputil.ReverseProxy
	services map[string]string
}

// NewGateway resolves every service once. resolver may be nil, in which
// case only the fallback URLs are used.
func NewGateway(resolver ServiceResolver, fallbacks map[string]string, logger *zap.Logger) *Gateway {
	g := &Gateway{
		resolver:  resolver,
		fallbacks: fallbacks,
		logger:    logger,
		proxies:   make(map[string]*httputil.ReverseProxy),
		services:  make(map[string]string),
	}
	g.discoverServices()
	return g
}

func (g *Gateway) discoverServices() {
	for svc, fallback := range g.fallbacks {
		target := fallback
		if g.resolver != nil {
			resolved, err := g.resolver.GetServiceURL(svc)
			if err != nil {
				g.logger.Warn("⚠️ Service not found in Consul, using fallback",
					zap.String("service", svc),
					zap.String("fallback", fallback),
					zap.Error(err),
				)
			} else {
				target = resolved
			}
		}
		g.updateProxy(svc, target)
	}
}

func (g *Gateway) updateProxy(serviceName, serviceURL string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.services[serviceName] == serviceURL {
		return
	}

	target, err := url.Parse(serviceURL)
	if err != nil {
		g.logger.Error("❌ Invalid service URL", zap.String("service", serviceName), zap.Error(err))
		return
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.logger.Error("❌ Proxy error", zap.String("service", serviceName), zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error": "service unavailable"}`)
	}

	g.proxies[serviceName] = proxy
	g.services[serviceName] = serviceURL
	g.logger.Info("✅ Updated route", zap.String("service", serviceName), zap.String("url", serviceURL))
}

// Watch re-resolves services every interval until ctx is cancelled.
func (g *Gateway) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.discoverServices()
		}
	}
}

func (g *Gateway) getProxy(serviceName string) *httputil.ReverseProxy {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.proxies[serviceName]
}

func (g *Gateway) proxyTo(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		proxy := g.getProxy(serviceName)
		if proxy == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": serviceName + " unavailable"})
			return
		}
		g.logger.Debug("🔀 Routing",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("service", serviceName),
		)
		proxy.ServeHTTP(c.Writer, c.Request)
	}
}

func (g *Gateway) HealthCheck(c *gin.Context) {
	services := g.routes()

	statuses := make(map[string]string)
	allHealthy := true

	client := &http.Client{Timeout: 2 * time.Second}

	for name, url := range services {
		resp, err := client.Get(url + "/health")
		if err != nil || resp.StatusCode != http.StatusOK {
			statuses[name] = "unhealthy"
			allHealthy = false
		} else {
			statuses[name] = "healthy"
		}
		if resp != nil {
			resp.Body.Close()
		}
	}

	status := "healthy"
	if !allHealthy {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"service":  "api-gateway",
		"services": statuses,
	})
}

// ListServices shows the routed URLs and, when Consul is reachable, every
// registered service with its tags.
func (g *Gateway) ListServices(c *gin.Context) {
	resp := gin.H{"services": g.routes()}

	if catalog, ok := g.resolver.(ServiceCatalog); ok {
		registered, err := catalog.GetAllServices()
		if err != nil {
			g.logger.Warn("⚠️ Failed to list registered services", zap.Error(err))
		} else {
			resp["registered"] = registered
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (g *Gateway) routes() map[string]string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	out := make(map[string]string, len(g.services))
	for k, v := range g.services {
		out[k] = v
	}
	return out
}

func (g *Gateway) Register(r gin.IRoutes) {
	r.GET("/health", g.HealthCheck)
	r.GET("/services", g.ListServices)

	r.Any("/products", g.proxyTo(productService))
	r.Any("/products/*path", g.proxyTo(productService))
	r.Any("/carts", g.proxyTo(cartService))
	r.Any("/carts/*path", g.proxyTo(cartService))
}
