// Package hostcheck — проверка домена страницы, в которую встроен виджет,
// по списку разрешенных доменов чат-бота.
package hostcheck

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ParseHostname возвращает регистрируемый домен (eTLD+1) страницы:
// https://shop.example.co.uk/cart → example.co.uk
func ParseHostname(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("разбор URL %q: %w", rawURL, err)
	}

	host := u.Hostname()
	if host == "" {
		// Допускаем и голый hostname без схемы
		host = strings.SplitN(rawURL, "/", 2)[0]
	}
	if host == "" {
		return "", fmt.Errorf("пустой hostname в %q", rawURL)
	}

	// localhost и IP публичного суффикса не имеют
	if host == "localhost" || !strings.Contains(host, ".") {
		return host, nil
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("определение домена для %q: %w", host, err)
	}
	return domain, nil
}

// Allowed проверяет, разрешен ли виджет на странице pageURL.
// Пустой список доменов означает «разрешен везде».
func Allowed(allowedDomains []string, pageURL string) bool {
	if len(allowedDomains) == 0 {
		return true
	}

	domain, err := ParseHostname(pageURL)
	if err != nil {
		return false
	}

	for _, allowed := range allowedDomains {
		if strings.EqualFold(strings.TrimSpace(allowed), domain) {
			return true
		}
	}
	return false
}
