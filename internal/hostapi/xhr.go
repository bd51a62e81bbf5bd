package hostapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/realmbridge/internal/realm"
)

// Ready states
const (
	Unsent = iota
	Opened
	HeadersReceived
	Loading
	Done
)

// ErrInvalidState is thrown when a method is called out of order.
var ErrInvalidState = errors.New("invalid state")

var xhrHandlers = []string{
	"onloadstart", "onprogress", "onabort", "onerror",
	"onload", "ontimeout", "onloadend", "onreadystatechange",
}

var forbiddenMethods = map[string]bool{"CONNECT": true, "TRACE": true, "TRACK": true}

type host struct {
	realm  *realm.Realm
	vm     *goja.Runtime
	client *resty.Client
	config Config
	base   *url.URL
	logger *zap.Logger
}

// xhr is one XMLHttpRequest instance. All fields are owned by the realm
// loop; the request goroutine only sees a snapshot.
type xhr struct {
	host *host
	obj  *goja.Object

	method  string
	url     string
	async   bool
	headers http.Header

	readyState      int
	timeout         int64
	withCredentials bool
	responseType    string
	mimeOverride    string
	sent            bool

	status      int
	statusText  string
	respHeader  http.Header
	contentType string
	body        []byte
	text        string

	// gen invalidates completions of requests that were aborted or reopened
	gen    int
	cancel context.CancelFunc

	listeners map[string][]goja.Value
}

type outcome struct {
	status     int
	statusText string
	header     http.Header
	body       []byte
	err        error
}

// InstallXHR defines the global XMLHttpRequest in r. It must run on the
// realm loop, typically from realm.Config.Init.
func InstallXHR(r *realm.Realm, cfg Config) error {
	h := &host{
		realm:  r,
		vm:     r.VM(),
		client: cfg.Client,
		config: cfg,
		logger: logging.OrNop(cfg.Logger).Named("xhr").With(zap.String("realm", r.Name())),
	}
	if h.client == nil {
		h.client = NewClient(cfg)
	}
	if cfg.BaseURL != "" {
		base, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return fmt.Errorf("xhr base url: %w", err)
		}
		h.base = base
	}

	ctor := h.vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		x := &xhr{
			host:      h,
			obj:       call.This,
			headers:   make(http.Header),
			listeners: make(map[string][]goja.Value),
		}
		if err := x.define(); err != nil {
			panic(h.vm.NewGoError(err))
		}
		return call.This
	}).(*goja.Object)

	for name, v := range map[string]int{
		"UNSENT": Unsent, "OPENED": Opened, "HEADERS_RECEIVED": HeadersReceived,
		"LOADING": Loading, "DONE": Done,
	} {
		if err := ctor.DefineDataProperty(name, h.vm.ToValue(v), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}

	return h.vm.Set("XMLHttpRequest", ctor)
}

func (x *xhr) define() error {
	vm := x.host.vm

	var errs []error
	accessor := func(name string, get func() goja.Value, set func(goja.Value)) {
		var setter goja.Value
		if set != nil {
			setter = vm.ToValue(func(call goja.FunctionCall) goja.Value {
				set(call.Argument(0))
				return goja.Undefined()
			})
		} else {
			setter = vm.ToValue(func(goja.FunctionCall) goja.Value { return goja.Undefined() })
		}
		getter := vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
		errs = append(errs, x.obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE))
	}
	method := func(name string, fn func(goja.FunctionCall) goja.Value) {
		errs = append(errs, x.obj.Set(name, fn))
	}

	accessor("readyState", func() goja.Value { return vm.ToValue(x.readyState) }, nil)
	accessor("status", func() goja.Value { return vm.ToValue(x.status) }, nil)
	accessor("statusText", func() goja.Value { return vm.ToValue(x.statusText) }, nil)
	accessor("responseText", func() goja.Value { return vm.ToValue(x.responseText()) }, nil)
	accessor("response", x.response, nil)
	accessor("responseXML", func() goja.Value { return goja.Null() }, nil)
	accessor("upload", func() goja.Value { return goja.Null() }, nil)
	accessor("timeout",
		func() goja.Value { return vm.ToValue(x.timeout) },
		func(v goja.Value) {
			if ms := v.ToInteger(); ms >= 0 {
				x.timeout = ms
			}
		},
	)
	accessor("withCredentials",
		func() goja.Value { return vm.ToValue(x.withCredentials) },
		func(v goja.Value) { x.withCredentials = v.ToBoolean() },
	)
	accessor("responseType",
		func() goja.Value { return vm.ToValue(x.responseType) },
		func(v goja.Value) {
			switch t := v.String(); t {
			case "", "text", "json", "arraybuffer":
				x.responseType = t
			default:
				x.host.logger.Debug("Unsupported responseType", zap.String("responseType", t))
			}
		},
	)

	for _, name := range xhrHandlers {
		errs = append(errs, x.obj.Set(name, goja.Null()))
	}

	method("open", x.open)
	method("setRequestHeader", x.setRequestHeader)
	method("send", x.send)
	method("abort", x.abort)
	method("getResponseHeader", x.getResponseHeader)
	method("getAllResponseHeaders", x.getAllResponseHeaders)
	method("overrideMimeType", func(call goja.FunctionCall) goja.Value {
		x.mimeOverride = call.Argument(0).String()
		return goja.Undefined()
	})
	method("addEventListener", x.addEventListener)
	method("removeEventListener", x.removeEventListener)

	return errors.Join(errs...)
}

func (x *xhr) throwState(format string, args ...any) {
	panic(x.host.vm.NewGoError(fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))))
}

func (x *xhr) open(call goja.FunctionCall) goja.Value {
	vm := x.host.vm

	method := strings.ToUpper(call.Argument(0).String())
	if method == "" || forbiddenMethods[method] {
		panic(vm.NewTypeError("XMLHttpRequest.open: method %q is not allowed", method))
	}

	target, err := x.host.resolve(call.Argument(1).String())
	if err != nil {
		panic(vm.NewTypeError("XMLHttpRequest.open: %v", err))
	}

	async := true
	if a := call.Argument(2); !goja.IsUndefined(a) {
		async = a.ToBoolean()
	}

	x.stop()
	x.method = method
	x.url = target
	x.async = async
	x.headers = make(http.Header)
	x.sent = false
	x.resetResponse()
	x.readyState = Opened
	x.fire("readystatechange", nil)
	return goja.Undefined()
}

func (x *xhr) setRequestHeader(call goja.FunctionCall) goja.Value {
	if x.readyState != Opened || x.sent {
		x.throwState("setRequestHeader called before open or after send")
	}
	x.headers.Add(call.Argument(0).String(), call.Argument(1).String())
	return goja.Undefined()
}

func (x *xhr) send(call goja.FunctionCall) goja.Value {
	if x.readyState != Opened || x.sent {
		x.throwState("send called before open or twice")
	}

	var body []byte
	if b := call.Argument(0); !goja.IsUndefined(b) && !goja.IsNull(b) && x.method != http.MethodGet && x.method != http.MethodHead {
		body = []byte(b.String())
	}

	x.sent = true
	x.gen++
	gen := x.gen

	timeout := x.host.config.Timeout
	if x.timeout > 0 {
		timeout = time.Duration(x.timeout) * time.Millisecond
	}
	parent := x.host.realm.Context()
	var ctx context.Context
	if timeout > 0 {
		ctx, x.cancel = context.WithTimeout(parent, timeout)
	} else {
		ctx, x.cancel = context.WithCancel(parent)
	}

	req := x.host.client.R().SetContext(ctx).SetHeaderMultiValues(x.headers.Clone())
	if body != nil {
		req.SetBody(body)
	}
	method, target := x.method, x.url

	x.fire("loadstart", progress(0, 0))

	if !x.async {
		x.complete(gen, x.host.do(req, method, target))
		return goja.Undefined()
	}

	go func() {
		out := x.host.do(req, method, target)
		if err := x.host.realm.Post(func() { x.complete(gen, out) }); err != nil {
			x.host.logger.Debug("Dropping XHR completion", zap.String("url", target), zap.Error(err))
		}
	}()
	return goja.Undefined()
}

func (h *host) do(req *resty.Request, method, target string) outcome {
	start := time.Now()
	resp, err := req.Execute(method, target)
	if err != nil {
		h.logger.Debug("XHR failed", zap.String("method", method), zap.String("url", target), zap.Error(err))
		return outcome{err: err}
	}

	h.logger.Debug("XHR completed",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", time.Since(start)),
	)
	return outcome{
		status:     resp.StatusCode(),
		statusText: statusText(resp.Status(), resp.StatusCode()),
		header:     resp.Header().Clone(),
		body:       resp.Body(),
	}
}

// complete applies a finished request on the loop.
func (x *xhr) complete(gen int, out outcome) {
	if gen != x.gen {
		return
	}
	if x.cancel != nil {
		x.cancel()
		x.cancel = nil
	}
	x.sent = false

	if out.err != nil {
		x.resetResponse()
		x.readyState = Done
		x.fire("readystatechange", nil)
		if isTimeout(out.err) {
			x.fire("timeout", progress(0, 0))
		} else {
			x.fire("error", progress(0, 0))
		}
		x.fire("loadend", progress(0, 0))
		return
	}

	x.status = out.status
	x.statusText = out.statusText
	x.respHeader = out.header
	x.body = out.body
	x.contentType = x.respHeader.Get("Content-Type")
	if x.contentType == "" && len(x.body) > 0 {
		x.contentType = mimetype.Detect(x.body).String()
	}
	if x.mimeOverride != "" {
		x.contentType = x.mimeOverride
	}
	x.text = decodeText(x.body, x.contentType)

	total := int64(len(x.body))
	x.readyState = HeadersReceived
	x.fire("readystatechange", nil)
	x.readyState = Loading
	x.fire("readystatechange", nil)
	x.fire("progress", progress(total, total))
	x.readyState = Done
	x.fire("readystatechange", nil)
	x.fire("load", progress(total, total))
	x.fire("loadend", progress(total, total))
}

func (x *xhr) abort(goja.FunctionCall) goja.Value {
	if !x.sent {
		return goja.Undefined()
	}
	x.stop()
	x.resetResponse()
	x.readyState = Done
	x.fire("readystatechange", nil)
	x.fire("abort", progress(0, 0))
	x.fire("loadend", progress(0, 0))
	x.readyState = Unsent
	return goja.Undefined()
}

// stop cancels an in-flight request and ignores its completion
func (x *xhr) stop() {
	x.gen++
	x.sent = false
	if x.cancel != nil {
		x.cancel()
		x.cancel = nil
	}
}

func (x *xhr) resetResponse() {
	x.status = 0
	x.statusText = ""
	x.respHeader = nil
	x.contentType = ""
	x.body = nil
	x.text = ""
}

func (x *xhr) getResponseHeader(call goja.FunctionCall) goja.Value {
	if x.readyState < HeadersReceived || x.respHeader == nil {
		return goja.Null()
	}
	name := http.CanonicalHeaderKey(call.Argument(0).String())
	if name == "Content-Type" && x.contentType != "" {
		return x.host.vm.ToValue(x.contentType)
	}
	values, ok := x.respHeader[name]
	if !ok {
		return goja.Null()
	}
	return x.host.vm.ToValue(strings.Join(values, ", "))
}

func (x *xhr) getAllResponseHeaders(goja.FunctionCall) goja.Value {
	if x.readyState < HeadersReceived || x.respHeader == nil {
		return x.host.vm.ToValue("")
	}

	names := make([]string, 0, len(x.respHeader))
	for name := range x.respHeader {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(strings.ToLower(name))
		b.WriteString(": ")
		b.WriteString(strings.Join(x.respHeader[name], ", "))
		b.WriteString("\r\n")
	}
	return x.host.vm.ToValue(b.String())
}

func (x *xhr) responseText() string {
	if x.readyState < Loading {
		return ""
	}
	return x.text
}

func (x *xhr) response() goja.Value {
	vm := x.host.vm
	if x.readyState < Loading {
		if x.responseType == "" || x.responseType == "text" {
			return vm.ToValue("")
		}
		return goja.Null()
	}

	switch x.responseType {
	case "json":
		if x.readyState != Done || len(x.body) == 0 {
			return goja.Null()
		}
		var parsed goja.Value
		if ex := vm.Try(func() {
			parse, _ := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
			parsed, _ = parse(goja.Undefined(), vm.ToValue(x.text))
		}); ex != nil || parsed == nil {
			return goja.Null()
		}
		return parsed
	case "arraybuffer":
		if x.readyState != Done {
			return goja.Null()
		}
		return vm.ToValue(vm.NewArrayBuffer(append([]byte(nil), x.body...)))
	default:
		return vm.ToValue(x.text)
	}
}

func (x *xhr) addEventListener(call goja.FunctionCall) goja.Value {
	eventType := call.Argument(0).String()
	listener := call.Argument(1)
	if _, ok := goja.AssertFunction(listener); !ok {
		return goja.Undefined()
	}
	for _, existing := range x.listeners[eventType] {
		if existing.SameAs(listener) {
			return goja.Undefined()
		}
	}
	x.listeners[eventType] = append(x.listeners[eventType], listener)
	return goja.Undefined()
}

func (x *xhr) removeEventListener(call goja.FunctionCall) goja.Value {
	eventType := call.Argument(0).String()
	listener := call.Argument(1)
	list := x.listeners[eventType]
	for i, existing := range list {
		if existing.SameAs(listener) {
			x.listeners[eventType] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return goja.Undefined()
}

// fire dispatches eventType to the on* slot first, then to listeners.
// Exceptions thrown by script callbacks are logged and do not stop dispatch.
func (x *xhr) fire(eventType string, fields map[string]any) {
	vm := x.host.vm

	event := vm.NewObject()
	_ = event.Set("type", eventType)
	_ = event.Set("target", x.obj)
	_ = event.Set("currentTarget", x.obj)
	_ = event.Set("timeStamp", time.Now().UnixMilli())
	for k, v := range fields {
		_ = event.Set(k, v)
	}

	callbacks := append([]goja.Value(nil), x.obj.Get("on"+eventType))
	callbacks = append(callbacks, x.listeners[eventType]...)

	for _, cb := range callbacks {
		fn, ok := goja.AssertFunction(cb)
		if !ok {
			continue
		}
		if _, err := fn(x.obj, event); err != nil {
			x.host.logger.Warn("XHR event callback threw", zap.String("event", eventType), zap.Error(err))
		}
	}
}

func (h *host) resolve(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if h.base != nil {
		u = h.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url %q", raw)
	}
	return u.String(), nil
}

func progress(loaded, total int64) map[string]any {
	return map[string]any{
		"loaded":           loaded,
		"total":            total,
		"lengthComputable": total > 0,
	}
}

// statusText strips the code from a status line such as "200 OK".
func statusText(status string, code int) string {
	if text, ok := strings.CutPrefix(status, strconv.Itoa(code)+" "); ok {
		return text
	}
	if status == "" {
		return http.StatusText(code)
	}
	return status
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
