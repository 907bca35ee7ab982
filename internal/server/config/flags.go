package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/todoapi/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-j string   JWT algorithm (HS256, HS384, HS512)
//	-t int      token validity, hours
//	-l string   log level
//	-q string   Qdrant host
//	-p int      Qdrant gRPC port
//	-k string   Qdrant API key
//	-n string   Qdrant collection name
//	-v int      vector size
//	-e string   embedding provider (fastembed, tei, hash)
//	-m string   embedding model
//	-u string   embedding service URL (tei)
//	-reindex    re-sync all tasks into the vector index at startup
//
// Only the flags above are taken from args (see flagx.FilterArgs), so the
// -c/-config flag handled by the JSON loader does not collide with them.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{
		"-a", "-d", "-s", "-j", "-t", "-l", "-q", "-p", "-k", "-n", "-v", "-e", "-m", "-u", "-reindex",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.JWTAlgorithm, "j", config.JWTAlgorithm, "jwt signing algorithm")
	tokenValidity := fs.Int("t", int(config.TokenValidityDuration.Hours()), "token validity (in hours)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.QdrantHost, "q", config.QdrantHost, "qdrant host")
	fs.IntVar(&config.QdrantPort, "p", config.QdrantPort, "qdrant gRPC port")
	fs.StringVar(&config.QdrantAPIKey, "k", config.QdrantAPIKey, "qdrant API key")
	fs.StringVar(&config.QdrantCollection, "n", config.QdrantCollection, "qdrant collection")
	fs.IntVar(&config.VectorSize, "v", config.VectorSize, "embedding vector size")
	fs.StringVar(&config.EmbeddingProvider, "e", config.EmbeddingProvider, "embedding provider")
	fs.StringVar(&config.EmbeddingModel, "m", config.EmbeddingModel, "embedding model")
	fs.StringVar(&config.EmbeddingURL, "u", config.EmbeddingURL, "embedding service URL")
	fs.BoolVar(&config.ReindexOnStart, "reindex", config.ReindexOnStart, "reindex tasks on start")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if isFlagSet(fs, "t") {
		config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Hour
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
