package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/realmbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/realmbridge/internal/proxify"
	"github.com/GriffinCanCode/realmbridge/internal/realm"
	"github.com/GriffinCanCode/realmbridge/internal/transport/ws"
)

const greeterScript = `
function Greeter() { this.name = 'host'; }
Greeter.prototype.greet = function (who) { return 'hello ' + who + ' from ' + this.name; };
`

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeter.js"), []byte(greeterScript), 0o644))

	cfg := config.Default()
	cfg.Realm.PoolSize = 1
	cfg.Realm.Scripts = filepath.Join(dir, "**", "*.js")
	cfg.RateLimit.Enabled = false
	cfg.Bridge.RequestTimeout = 2 * time.Second

	srv, err := New(cfg, logging.Nop())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, ts
}

// connect opens an origin realm bridged to the server's /realm endpoint.
func connect(t *testing.T, ts *httptest.Server) (*realm.Realm, *ws.Peer) {
	t.Helper()

	origin, err := realm.New(realm.DefaultConfig("origin"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { origin.Close() })

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realm"
	peer, err := ws.Dial(context.Background(), url, origin, ws.WithName("origin"))
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	o := proxify.NewOrigin(origin, peer)
	peer.Bind(o)
	go func() { _ = peer.Run(context.Background()) }()
	require.NoError(t, proxify.NewBridge(o).Install(context.Background()))

	return origin, peer
}

func run(t *testing.T, r *realm.Realm, script string) interface{} {
	t.Helper()
	res, err := r.Execute(context.Background(), script)
	require.NoError(t, err)
	return res.Value
}

func eventually(t *testing.T, r *realm.Realm, script string) {
	t.Helper()
	require.Eventually(t, func() bool {
		res, err := r.Execute(context.Background(), script)
		return err == nil && res.Value == true
	}, 3*time.Second, 10*time.Millisecond, script)
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	var health struct {
		Status string `json:"status"`
		Pool   struct {
			Size      int `json:"size"`
			Available int `json:"available"`
		} `json:"pool"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.Pool.Size)
	assert.Equal(t, 1, health.Pool.Available)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "realmbridge_")
}

func TestRealmSessionRunsScriptTypes(t *testing.T) {
	srv, ts := newTestServer(t)
	origin, peer := connect(t, ts)

	run(t, origin, `
		Proxify.setupOriginProxyType('Greeter', ['name'], ['greet'], []);
		var g = new Greeter();
		var out = null;
		g.greet('origin').then(function (v) { out = v; });
	`)
	eventually(t, origin, "out !== null")
	assert.Equal(t, "hello origin from host", run(t, origin, "out"))
	assert.Equal(t, "host", run(t, origin, "g.name"))

	sessions := srv.Sessions().List()
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, srv.Sessions().Stats().Active)

	require.NoError(t, peer.Close())
	require.Eventually(t, func() bool {
		return srv.Sessions().Stats().Active == 0
	}, 3*time.Second, 10*time.Millisecond)

	var health struct {
		Pool struct {
			Available int `json:"available"`
		} `json:"pool"`
	}
	require.Eventually(t, func() bool {
		getJSON(t, ts.URL+"/health", &health)
		return health.Pool.Available == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRealmSessionProxiesXMLHttpRequest(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "hello "+r.URL.Query().Get("who"))
	}))
	t.Cleanup(target.Close)

	_, ts := newTestServer(t)
	origin, _ := connect(t, ts)

	run(t, origin, `
		Proxify.xhr();
		var x = new XMLHttpRequest();
		var result = null;
		x.onload = function (e) {
			result = { type: e.type, same: e.target === x, status: x.status, text: x.responseText };
		};
		x.open('GET', '`+target.URL+`/?who=origin');
		x.send();
	`)

	eventually(t, origin, "result !== null")
	assert.JSONEq(t,
		`{"type":"load","same":true,"status":200,"text":"hello origin"}`,
		run(t, origin, "JSON.stringify(result)").(string))
}

func TestRealmUnavailableWhenPoolExhausted(t *testing.T) {
	_, ts := newTestServer(t)
	connect(t, ts)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/realm"
	origin, err := realm.New(realm.DefaultConfig("late"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { origin.Close() })

	_, err = ws.Dial(context.Background(), url, origin)
	assert.Error(t, err)
}

func TestLoadScriptsSorted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.js"), []byte("var b = 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "a.js"), []byte("var a = 1;"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0o644))

	scripts, err := loadScripts(filepath.Join(dir, "**", "*.js"))
	require.NoError(t, err)
	require.Len(t, scripts, 2)
	assert.Equal(t, filepath.Join(dir, "b.js"), scripts[0].name)
	assert.Equal(t, filepath.Join(dir, "nested", "a.js"), scripts[1].name)

	none, err := loadScripts("")
	require.NoError(t, err)
	assert.Empty(t, none)
}
