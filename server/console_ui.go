package server

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	msconfig "github.com/example/mockgw/config"
)

// consoleLoginHTML is a minimal inline login page for the console's JSON
// API (POST {path}/login), in the same self-contained-HTML-string style as
// swaggerUIHandler. No static asset pipeline: the retrieval pack carries no
// console frontend build to serve, so the console surfaces as a thin JSON
// API plus this single login form rather than a fabricated SPA.
const consoleLoginHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8" />
<title>mockgw Console</title>
<style>
body { font-family: -apple-system, sans-serif; background: #0f172a; color: #e2e8f0;
       display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; }
form { background: #1e293b; padding: 2rem; border-radius: 8px; width: 280px; }
input { display: block; width: 100%; margin-bottom: 1rem; padding: .5rem; border-radius: 4px;
        border: 1px solid #334155; background: #0f172a; color: #e2e8f0; box-sizing: border-box; }
button { width: 100%; padding: .5rem; border: none; border-radius: 4px; background: #3b82f6;
         color: white; cursor: pointer; }
#err { color: #f87171; min-height: 1.2em; font-size: .9rem; }
</style>
</head>
<body>
<form id="login">
  <h2>mockgw Console</h2>
  <input id="username" name="username" placeholder="Username" autocomplete="username" />
  <input id="password" name="password" type="password" placeholder="Password" autocomplete="current-password" />
  <div id="err"></div>
  <button type="submit">Sign in</button>
</form>
<script>
document.getElementById('login').addEventListener('submit', async (e) => {
  e.preventDefault();
  const res = await fetch(window.location.pathname, {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({
      username: document.getElementById('username').value,
      password: document.getElementById('password').value,
    }),
  });
  const data = await res.json();
  if (data.success) {
    window.location.href = data.redirect;
  } else {
    document.getElementById('err').textContent = data.error || 'Login failed';
  }
});
</script>
</body>
</html>`

// SetupConsoleRoutes registers the console's login page and its JSON API
// group (session check, sanitized config, logout) behind
// ConsoleAuthMiddleware. There is no static asset bundle: the console is a
// thin operational surface, not a full SPA.
func SetupConsoleRoutes(app *fiber.App, cfg *msconfig.Config) {
	initJWTSecret(cfg)

	if !cfg.Server.Console.Enabled {
		return
	}

	consoleCfg := cfg.Server.Console
	cPath := strings.TrimRight(consoleCfg.Path, "/")

	app.Get(cPath+"/login", func(c *fiber.Ctx) error {
		token := c.Cookies(JWTCookieName)
		if token != "" {
			if _, err := validateToken(token); err == nil {
				return c.Redirect(cPath)
			}
		}
		return c.Type("html").SendString(consoleLoginHTML)
	})
	app.Post(cPath+"/login", ConsoleLoginHandler(cfg))

	consoleGroup := app.Group(cPath, ConsoleAuthMiddleware(cfg))
	consoleGroup.Get("/me", ConsoleMeHandler)
	consoleGroup.Get("/config.json", SafeConfigHandler(cfg))
	consoleGroup.Get("/logout", ConsoleLogoutHandler(cfg))
}
