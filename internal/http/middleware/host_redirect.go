package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HostRedirect разводит трафик между маркетинговым сайтом и приложением:
// пути приложения на маркетинговом хосте уходят на хост приложения, корень
// хоста приложения уходит на маркетинговый сайт. Путь и query сохраняются.
// Пустые хосты отключают редирект. Хосты сравниваются без учёта регистра.
func HostRedirect(marketingHost, appHost string) gin.HandlerFunc {
	marketingHost = normalizeHost(marketingHost)
	appHost = normalizeHost(appHost)
	return func(c *gin.Context) {
		if marketingHost == "" || appHost == "" {
			c.Next()
			return
		}

		host := strings.ToLower(c.Request.Host)
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		path := c.Request.URL.Path

		var target string
		switch {
		case host == marketingHost && path != "/":
			target = appHost
		case host == appHost && path == "/":
			target = marketingHost
		default:
			c.Next()
			return
		}

		scheme := "https"
		if c.Request.TLS == nil && c.GetHeader("X-Forwarded-Proto") == "http" {
			scheme = "http"
		}
		c.Redirect(http.StatusPermanentRedirect, scheme+"://"+target+c.Request.URL.RequestURI())
		c.Abort()
	}
}

func normalizeHost(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}
