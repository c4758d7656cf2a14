package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/betbot/tradegate/pkg/secretstore"
)

// 只导入网关会读取的变量，避免把无关内容写进密钥库
var defaultKeys = []string{
	"KRAKEN_API_KEY",
	"KRAKEN_API_SECRET",
	"ALLOWED_TELEGRAM_ID",
	"AUTHORIZED_CALLER",
}

func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path")
		dbPath    = flag.String("badger", getenv("GATEWAY_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("GATEWAY_SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		keys      = flag.String("keys", strings.Join(defaultKeys, ","), "comma separated variables to import; \"*\" imports everything")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set GATEWAY_SECRET_KEY or pass -secret-key"))
	}

	kv, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(fmt.Errorf("read %s: %w", *inPath, err))
	}

	selected := selectKeys(kv, *keys)
	if len(selected) == 0 {
		fatal(fmt.Errorf("nothing to import from %s", *inPath))
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	for _, k := range selected {
		if err := ss.SetString(secretstore.EnvPrefix+k, kv[k]); err != nil {
			fatal(err)
		}
	}

	fmt.Fprintf(os.Stderr, "已导入 %d 项到 badger：%s（%s）\n", len(selected), *dbPath, strings.Join(selected, ", "))
}

func selectKeys(kv map[string]string, list string) []string {
	var out []string
	if strings.TrimSpace(list) == "*" {
		for k := range kv {
			out = append(out, k)
		}
	} else {
		for _, k := range strings.Split(list, ",") {
			k = strings.TrimSpace(k)
			if _, ok := kv[k]; ok && k != "" {
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
