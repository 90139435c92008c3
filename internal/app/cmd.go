package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は過去の申込を定期削除するワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandSeed は初期名簿を投入することを示す。
	CommandSeed Command = "seed"
	// CommandClearSignups は全申込を削除することを示す。
	CommandClearSignups Command = "clear-signups"
	// CommandBook はクライアントストア経由で申込をトグルすることを示す。
	CommandBook Command = "book"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "seed":
		return CommandSeed
	case "clear-signups":
		return CommandClearSignups
	case "book":
		return CommandBook
	default:
		return CommandServe
	}
}

// MigrateAction はmigrateサブコマンドの操作を表す。
type MigrateAction string

const (
	MigrateUp      MigrateAction = "up"
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// ParseMigrateAction はmigrateに続く引数から操作を解析する。省略時はup。
func ParseMigrateAction(args []string) (MigrateAction, bool) {
	if len(args) == 0 {
		return MigrateUp, true
	}
	switch MigrateAction(args[0]) {
	case MigrateUp, MigrateDown, MigrateVersion:
		return MigrateAction(args[0]), true
	default:
		return "", false
	}
}
