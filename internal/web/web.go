// Package web はランディングページの静的ファイル配信を提供する。
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/hitoshi/baasproxy/internal/middleware"
)

//go:embed static
var embedded embed.FS

// Handler は静的ファイルを配信するhttp.Handlerを返す。
// dirが空の場合はバイナリに埋め込んだページを配信し、
// 指定された場合はそのディレクトリを配信する。
// ディレクトリ一覧は返さず、存在しないパスはJSONの404を返す。
func Handler(dir string) http.Handler {
	fsys := staticFS()
	if dir != "" {
		fsys = os.DirFS(dir)
	}
	files := http.FileServer(http.FS(fsys))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "index.html"
		}
		info, err := fs.Stat(fsys, name)
		if err != nil || info.IsDir() {
			middleware.WriteErrorResponse(w, http.StatusNotFound, "Not found")
			return
		}
		files.ServeHTTP(w, r)
	})
}

func staticFS() fs.FS {
	sub, err := fs.Sub(embedded, "static")
	if err != nil {
		// 埋め込みパスはコンパイル時に確定している
		panic(err)
	}
	return sub
}
