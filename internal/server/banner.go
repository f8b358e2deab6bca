package server

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
)

// Version 服务版本
const Version = "1.0.0"

const banner = `
 ___  ___ __    __ ___ _  _  ___ _____
| _ \/   \\ \  / // __| || |/   \_   _|   realtime chat for lost & found pets
|  _/| - | \ \/\/ /| (__| __ || - | | |     listening: %s
|_|  |_|_|  \_/\_/  \___|_||_||_|_| |_|     version: %s
`

func printBanner(addr string, routes gin.RoutesInfo) {
	out := os.Stdout
	open := addr
	if strings.HasPrefix(addr, ":") || strings.HasPrefix(addr, "[::]") {
		open = "127.0.0.1" + addr[strings.LastIndex(addr, ":"):]
	}
	fprint(out, banner, "ws://"+open+"/ws", Version)
	fprint(out, "\n")
	printRoutes(out, routes)
	fprint(out, "\n[pawchat] Go version: %s | OS: %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printRoutes(out io.Writer, routes gin.RoutesInfo) {
	width := 0
	for _, r := range routes {
		width = max(width, len(r.Path))
	}
	for _, r := range routes {
		fprint(out, "[pawchat] %-7s %-*s --> %s\n", r.Method, width, r.Path, r.Handler)
	}
}

func fprint(out io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(out, format, a...)
}
