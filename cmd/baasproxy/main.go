// Command baasproxy はBaaSプロバイダーの前段に置くAPIプロキシサーバー。
//
// サブコマンド:
//
//	serve        APIサーバーを起動する（デフォルト）
//	migrate      membershipsテーブルのマイグレーションを適用する（DATABASE_URL必須）
//	healthcheck  /health を叩いて終了コードで結果を返す
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/baasproxy/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "baasproxy: %v\n", err)
		os.Exit(1)
	}
}
