package scraper

import (
	"proxyrank/internal/shared/types"
	"proxyrank/proxypool/model"
)

var defaultLists = map[model.Protocol][]string{
	model.ProtoHTTP: {
		"https://api.proxyscrape.com/?request=displayproxies&proxytype=http&timeout=10000&country=all&simplified=true",
		"https://api.openproxylist.xyz/http.txt",
		"https://proxyspace.pro/http.txt",
		"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/http.txt",
		"https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/http.txt",
		"https://raw.githubusercontent.com/proxifly/free-proxy-list/main/proxies/protocols/http/data.txt",
	},
	model.ProtoSOCKS4: {
		"https://api.proxyscrape.com/?request=displayproxies&proxytype=socks4&timeout=10000&country=all&simplified=true",
		"https://api.openproxylist.xyz/socks4.txt",
		"https://proxyspace.pro/socks4.txt",
		"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/socks4.txt",
		"https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/socks4.txt",
		"https://raw.githubusercontent.com/proxifly/free-proxy-list/main/proxies/protocols/socks4/data.txt",
	},
	model.ProtoSOCKS5: {
		"https://api.proxyscrape.com/v2/?request=getproxies&protocol=socks5&timeout=10000&country=all&simplified=true",
		"https://api.openproxylist.xyz/socks5.txt",
		"https://proxyspace.pro/socks5.txt",
		"https://raw.githubusercontent.com/TheSpeedX/PROXY-List/master/socks5.txt",
		"https://raw.githubusercontent.com/monosans/proxy-list/main/proxies/socks5.txt",
		"https://raw.githubusercontent.com/proxifly/free-proxy-list/main/proxies/protocols/socks5/data.txt",
	},
}

// DefaultScrapers builds the built-in source set from cfg.
func DefaultScrapers(cfg types.SourcesConf) []Scraper {
	timeout := cfg.Timeout()
	scrapers := make([]Scraper, 0, len(model.Protocols)+1)
	for _, proto := range model.Protocols {
		scrapers = append(scrapers, NewTextListScraper("lists/"+string(proto), proto, timeout, defaultLists[proto]...))
	}
	if cfg.SocksProxyNet {
		scrapers = append(scrapers, NewSocksProxyNetScraper(timeout))
	}
	return scrapers
}
