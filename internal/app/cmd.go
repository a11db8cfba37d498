package app

import "strings"

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はリレーAPIサーバーモード（オンボーディング完了と在庫API）。
	CommandServe Command = "serve"
	// CommandWorker は在庫の自動削除ジョブを実行するワーカーモード。
	CommandWorker Command = "worker"
	// CommandMigrate はpantry_itemsのマイグレーションを適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 大文字小文字は区別しない。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch c := Command(strings.ToLower(strings.TrimSpace(args[0]))); c {
	case CommandWorker, CommandMigrate, CommandHealthcheck:
		return c
	default:
		return CommandServe
	}
}
