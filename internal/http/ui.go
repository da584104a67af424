package http

import (
	"bytes"
	"html/template"
	nethttp "net/http"

	"cryo-dashboard/internal/page"
	"cryo-dashboard/internal/state"
)

type navItem struct {
	Key   string
	Title string
}

type shellView struct {
	Nav []navItem
}

func navigation() []navItem {
	items := make([]navItem, 0, len(state.Pages()))
	for _, p := range state.Pages() {
		r, ok := page.Lookup(p)
		if !ok {
			continue
		}
		items = append(items, navItem{Key: p.String(), Title: r.Title})
	}
	return items
}

var shellTemplate = template.Must(template.New("shell").Parse(dashboardHTML))

func (s *Server) dashboardHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	var buf bytes.Buffer
	if err := shellTemplate.Execute(&buf, shellView{Nav: navigation()}); err != nil {
		s.log.Error().Err(err).Msg("render shell")
		writeJSON(w, nethttp.StatusInternalServerError, map[string]any{"error": "failed to render dashboard"})
		return
	}
	if _, err := s.identities.ensure(r, w.Header()); err != nil {
		s.log.Warn().Err(err).Msg("issue client identifier")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func faviconHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.WriteHeader(nethttp.StatusNoContent)
}

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Cryogenics dashboard</title>
  <script src="https://cdn.plot.ly/plotly-2.35.2.min.js" charset="utf-8"></script>
  <style>
    :root {
      --blue: #0e5d8f;
      --blue-2: #0971b2;
      --bg: #f7f7f7;
      --paper: #fff;
      --text: #333;
      --muted: #777;
      --line: #ddd;
      --head: #f0f0f0;
      --ok-bg: #dff0d8;
      --ok-text: #3c763d;
      --warn-bg: #fcf8e3;
      --warn-text: #8a6d3b;
      --bad-bg: #f2dede;
      --bad-text: #a94442;
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      background: var(--bg);
      color: var(--text);
      font-family: "Open Sans", "Helvetica Neue", Helvetica, Arial, sans-serif;
      font-size: 14px;
      line-height: 1.42857143;
    }

    header {
      display: flex;
      align-items: center;
      gap: 16px;
      padding: 0 20px;
      background: var(--blue);
      color: #fff;
      min-height: 52px;
    }
    header .brand { font-weight: 600; font-size: 16px; margin-right: 12px; }
    header nav { display: flex; gap: 4px; flex: 1; }
    header nav button {
      background: transparent;
      color: #fff;
      border: 0;
      padding: 16px 12px;
      font: inherit;
      cursor: pointer;
    }
    header nav button.active, header nav button:hover { background: var(--blue-2); }
    header .meta { display: flex; gap: 12px; align-items: center; font-size: 12px; }

    main { max-width: 1280px; margin: 0 auto; padding: 20px; }
    h1.h4 { font-size: 18px; font-weight: 600; margin: 0 0 12px; }

    .status_container {
      background: var(--paper);
      border: 1px solid var(--line);
      border-radius: 4px;
      padding: 16px;
      margin-bottom: 16px;
    }
    .row { display: flex; gap: 16px; }
    .col-9 { flex: 3; min-height: 320px; }
    .col-3 { flex: 1; }
    .history-plot { max-width: 100%; }

    table { width: 100%; border-collapse: collapse; }
    th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid var(--line); }
    th { background: var(--head); }

    form fieldset { border: 1px solid var(--line); margin-bottom: 12px; }
    form label { display: block; margin: 6px 0 2px; color: var(--muted); }

    .badge { display: inline-block; padding: 2px 8px; border-radius: 10px; font-weight: 600; }
    .badge--connected { background: var(--ok-bg); color: var(--ok-text); }
    .badge--connecting, .badge--reconnecting { background: var(--warn-bg); color: var(--warn-text); }
    .badge--disconnected { background: var(--bad-bg); color: var(--bad-text); }

    #notice:empty { display: none; }
    .notice { padding: 8px 12px; border-radius: 4px; margin-bottom: 12px; }
    .notice--info { background: var(--ok-bg); color: var(--ok-text); }
    .notice--warning { background: var(--warn-bg); color: var(--warn-text); }
    .notice--error { background: var(--bad-bg); color: var(--bad-text); }
  </style>
</head>
<body>
  <header>
    <span class="brand">Cryogenics dashboard</span>
    <nav>{{range .Nav}}
      <button type="button" data-action="navigate" data-page="{{.Key}}">{{.Title}}</button>{{end}}
    </nav>
    <div class="meta">
      <span id="health"></span>
      <span id="connections"></span>
    </div>
  </header>
  <main>
    <div id="notice"></div>
    <div id="content"></div>
  </main>
  <script>
  (function () {
    var socket = null;
    var retry = 1000;

    function byId(id) { return document.getElementById(id); }

    function send(msg) {
      if (socket && socket.readyState === WebSocket.OPEN) {
        socket.send(JSON.stringify(msg));
      }
    }

    function markNav(page) {
      document.querySelectorAll("header nav button").forEach(function (b) {
        b.classList.toggle("active", b.dataset.page === page);
      });
    }

    function drawPlot(update) {
      var el = byId(update.target);
      if (!el || !window.Plotly) { return; }
      var opts = { responsive: true, displaylogo: false };
      if (update.revision === 0 || !el.data) {
        Plotly.newPlot(el, update.traces, update.layout, opts);
      } else {
        Plotly.react(el, update.traces, update.layout, opts);
      }
    }

    function apply(frame) {
      var el;
      switch (frame.type) {
        case "page":
          el = byId("content");
          document.querySelectorAll("#content .js-plotly-plot").forEach(function (p) { Plotly.purge(p); });
          el.innerHTML = frame.html;
          document.title = frame.title + " | Cryogenics dashboard";
          markNav(frame.page);
          break;
        case "patch":
        case "health":
        case "notice":
          el = byId(frame.target);
          if (el) { el.innerHTML = frame.html || ""; }
          if (frame.type === "health") { document.body.dataset.health = frame.health; }
          break;
        case "plot":
          if (frame.plot) { drawPlot(frame.plot); }
          break;
      }
    }

    function connect() {
      var scheme = location.protocol === "https:" ? "wss://" : "ws://";
      socket = new WebSocket(scheme + location.host + "/ws");
      socket.onopen = function () { retry = 1000; };
      socket.onmessage = function (ev) {
        try { apply(JSON.parse(ev.data)); } catch (err) { console.error("bad frame", err); }
      };
      socket.onclose = function () {
        byId("health").innerHTML = '<span class="badge badge--disconnected">disconnected</span>';
        setTimeout(connect, retry);
        retry = Math.min(retry * 2, 30000);
      };
    }

    document.addEventListener("click", function (ev) {
      var el = ev.target.closest("[data-action]");
      if (!el || el.tagName === "FORM") { return; }
      var action = el.dataset.action;
      if (action === "navigate") {
        send({ action: action, page: el.dataset.page });
      } else if (action === "experiments_page") {
        send({ action: action, list_page: parseInt(el.dataset.page, 10) });
      } else {
        send({ action: action });
      }
    });

    document.addEventListener("submit", function (ev) {
      var form = ev.target;
      if (form.dataset.action !== "save_config") { return; }
      ev.preventDefault();
      var values = {};
      new FormData(form).forEach(function (v, k) { values[k] = String(v); });
      send({ action: "save_config", form: values });
    });

    connect();
  })();
  </script>
</body>
</html>
`
