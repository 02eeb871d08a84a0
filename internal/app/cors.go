package app

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/BaSui01/salesflow/config"
)

// =============================================================================
// 🌐 跨域策略
// =============================================================================

// corsAllMethods 方法配置为 * 时允许的方法
var corsAllMethods = []string{
	http.MethodDelete,
	http.MethodGet,
	http.MethodHead,
	http.MethodOptions,
	http.MethodPatch,
	http.MethodPost,
	http.MethodPut,
}

// corsSafelistedHeaders 无需声明即可携带的请求头
var corsSafelistedHeaders = []string{"Accept", "Accept-Language", "Content-Language", "Content-Type"}

// CORSPolicy 跨域策略。
//
// 允许任意来源（allow_all_origins 或来源列表中含 *）时返回 Access-Control-Allow-Origin: *
// 且从不返回 Access-Control-Allow-Credentials；
// 只有显式来源列表才回显来源并允许凭据。
type CORSPolicy struct {
	allowAll        bool
	origins         map[string]struct{}
	methods         map[string]struct{}
	methodList      string
	allowAllHeaders bool
	headers         map[string]struct{}
	headerList      string
	maxAge          string
}

// NewCORSPolicy 根据配置构建跨域策略
func NewCORSPolicy(cfg config.CORSConfig) *CORSPolicy {
	p := &CORSPolicy{
		allowAll: cfg.AllowAllOrigins,
		origins:  make(map[string]struct{}, len(cfg.AllowedOrigins)),
		methods:  make(map[string]struct{}),
		headers:  make(map[string]struct{}),
	}

	for _, origin := range cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			p.allowAll = true
			continue
		}
		if origin != "" {
			p.origins[strings.TrimSuffix(origin, "/")] = struct{}{}
		}
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 || contains(methods, "*") {
		methods = corsAllMethods
	}
	for _, m := range methods {
		p.methods[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
	}
	p.methodList = joinSorted(p.methods)

	if contains(cfg.AllowedHeaders, "*") {
		p.allowAllHeaders = true
	} else {
		for _, h := range append(corsSafelistedHeaders, cfg.AllowedHeaders...) {
			if h = strings.TrimSpace(h); h != "" {
				p.headers[http.CanonicalHeaderKey(h)] = struct{}{}
			}
		}
		p.headerList = joinSorted(p.headers)
	}

	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(int(cfg.MaxAge.Seconds()))
	}
	return p
}

// AllowAllOrigins 是否允许任意来源
func (p *CORSPolicy) AllowAllOrigins() bool {
	return p.allowAll
}

// AllowCredentials 是否允许携带凭据，与 AllowAllOrigins 互斥
func (p *CORSPolicy) AllowCredentials() bool {
	return !p.allowAll
}

// AllowsOrigin 来源是否被允许
func (p *CORSPolicy) AllowsOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if p.allowAll {
		return true
	}
	_, ok := p.origins[origin]
	return ok
}

// Middleware 返回跨域中间件
func (p *CORSPolicy) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				p.preflight(w, r, origin)
				return
			}

			if p.AllowsOrigin(origin) {
				p.writeOriginHeaders(w.Header(), origin)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p *CORSPolicy) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	var failures []string
	if !p.AllowsOrigin(origin) {
		failures = append(failures, "origin")
	}

	method := strings.ToUpper(r.Header.Get("Access-Control-Request-Method"))
	if _, ok := p.methods[method]; !ok {
		failures = append(failures, "method")
	}

	requested := r.Header.Get("Access-Control-Request-Headers")
	if !p.allowAllHeaders {
		for _, name := range strings.Split(requested, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := p.headers[http.CanonicalHeaderKey(name)]; !ok {
				failures = append(failures, "headers")
				break
			}
		}
	}

	if len(failures) > 0 {
		http.Error(w, "Disallowed CORS "+strings.Join(failures, ", "), http.StatusBadRequest)
		return
	}

	p.writeOriginHeaders(h, origin)
	h.Set("Access-Control-Allow-Methods", p.methodList)
	if p.allowAllHeaders {
		if requested != "" {
			h.Set("Access-Control-Allow-Headers", requested)
		}
	} else {
		h.Set("Access-Control-Allow-Headers", p.headerList)
	}
	if p.maxAge != "" {
		h.Set("Access-Control-Max-Age", p.maxAge)
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeOriginHeaders 通配来源只写 *，显式来源回显并允许凭据
func (p *CORSPolicy) writeOriginHeaders(h http.Header, origin string) {
	if p.allowAll {
		h.Set("Access-Control-Allow-Origin", "*")
		return
	}
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Add("Vary", "Origin")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.TrimSpace(s) == v {
			return true
		}
	}
	return false
}

func joinSorted(set map[string]struct{}) string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
