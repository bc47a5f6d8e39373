package config

import (
	"log"
	"sync"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Scanner ScannerConfig `mapstructure:"scanner"`
	CPE     CPEConfig     `mapstructure:"cpe"`
	Leak    LeakConfig    `mapstructure:"leak"`
	Score   ScoreConfig   `mapstructure:"score"`
	Admin   AdminConfig   `mapstructure:"admin"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"`
	Issuer string `mapstructure:"issuer"`
}

type MongoDBConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	CVEDatabase string `mapstructure:"cve_database"`
	Timeout     int    `mapstructure:"timeout"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ScannerConfig struct {
	// Service risk analyzer bounds
	IPConcurrency   int `mapstructure:"ip_concurrency"`   // concurrent hosts
	ConnConcurrency int `mapstructure:"conn_concurrency"` // concurrent sockets
	HostTimeout     int `mapstructure:"host_timeout"`     // seconds per host
	ProbeTimeout    int `mapstructure:"probe_timeout"`    // seconds per socket op

	// Port scan (naabu)
	NaabuBin   string `mapstructure:"naabu_bin"`
	NaabuRate  int    `mapstructure:"naabu_rate"`
	NaabuRetry int    `mapstructure:"naabu_retry"`

	// DNS resolution
	DNSServers     []string `mapstructure:"dns_servers"`
	DNSConcurrency int      `mapstructure:"dns_concurrency"`

	// Subdomain enumeration
	SubfinderThreads int    `mapstructure:"subfinder_threads"`
	SubfinderTimeout int    `mapstructure:"subfinder_timeout"` // seconds per source
	ProviderConfig   string `mapstructure:"provider_config"`
}

type CPEConfig struct {
	DictionaryPath string `mapstructure:"dictionary_path"`
	QueryLimit     int    `mapstructure:"query_limit"`   // CVEs per CPE
	QueryWorkers   int    `mapstructure:"query_workers"` // concurrent store queries
}

type LeakConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Timeout  int    `mapstructure:"timeout"`   // seconds
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds
}

type ScoreConfig struct {
	AdjustK float64 `mapstructure:"adjust_k"`
}

type AdminConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

var (
	cfg  *Config
	once sync.Once
)

func LoadConfig(path string) *Config {
	once.Do(func() {
		viper.SetConfigFile(path)
		viper.SetConfigType("yaml")

		setDefaults()

		if err := viper.ReadInConfig(); err != nil {
			log.Fatalf("Failed to read config file: %v", err)
		}

		cfg = &Config{}
		if err := viper.Unmarshal(cfg); err != nil {
			log.Fatalf("Failed to unmarshal config: %v", err)
		}
	})

	return cfg
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("jwt.expire", 86400)
	viper.SetDefault("jwt.issuer", "threatlens")
	viper.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongodb.database", "threatlens")
	viper.SetDefault("mongodb.cve_database", "cvedb")
	viper.SetDefault("mongodb.timeout", 10)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("scanner.ip_concurrency", 20)
	viper.SetDefault("scanner.conn_concurrency", 50)
	viper.SetDefault("scanner.host_timeout", 30)
	viper.SetDefault("scanner.probe_timeout", 10)
	viper.SetDefault("scanner.naabu_rate", 500)
	viper.SetDefault("scanner.naabu_retry", 2)
	viper.SetDefault("scanner.dns_servers", []string{"8.8.8.8:53", "1.1.1.1:53"})
	viper.SetDefault("scanner.dns_concurrency", 50)
	viper.SetDefault("scanner.subfinder_threads", 10)
	viper.SetDefault("scanner.subfinder_timeout", 30)
	viper.SetDefault("cpe.dictionary_path", "data/official-cpe-dictionary_v2.3.xml")
	viper.SetDefault("cpe.query_limit", 5)
	viper.SetDefault("cpe.query_workers", 10)
	viper.SetDefault("leak.endpoint", "https://api.dehashed.com/v2/search")
	viper.SetDefault("leak.timeout", 30)
	viper.SetDefault("leak.cache_ttl", 86400)
	viper.SetDefault("score.adjust_k", 4)
	viper.SetDefault("admin.username", "admin")
}

func GetConfig() *Config {
	if cfg == nil {
		log.Fatal("Config not loaded. Call LoadConfig first.")
	}
	return cfg
}
