// Command coachdesk はコーチングプラットフォームのAPIサーバー・ワーカー・管理コマンドを起動する。
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/coachdesk/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "coachdesk: %v\n", err)
		os.Exit(1)
	}
}
