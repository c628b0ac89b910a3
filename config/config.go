package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress   string        `mapstructure:"http_address"`
	RPCAddress    string        `mapstructure:"rpc_address"`
	GRPCAddress   string        `mapstructure:"grpc_address"`
	IntentRate    float64       `mapstructure:"intent_rate"`  // 每个连接每秒允许的意图数
	IntentBurst   int           `mapstructure:"intent_burst"` // 突发上限
	Heartbeat     time.Duration `mapstructure:"heartbeat"`    // 两个周期内无消息视为断线
	IdleRoomTTL   time.Duration `mapstructure:"idle_room_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// GameConfig 对局参数，时长为 0 表示该阶段只能由房主推进
type GameConfig struct {
	MinPlayers      int           `mapstructure:"min_players"`
	RequireReady    bool          `mapstructure:"require_ready"`
	RoleRevealTime  time.Duration `mapstructure:"role_reveal_time"`
	NightTime       time.Duration `mapstructure:"night_time"`
	DayTime         time.Duration `mapstructure:"day_time"`
	VotingTime      time.Duration `mapstructure:"voting_time"`
	TimerResolution time.Duration `mapstructure:"timer_resolution"`
}

type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"` // memory | gorm | postgres | pebble
	Postgres PostgresConfig `mapstructure:"postgres"`
	Pebble   PebbleConfig   `mapstructure:"pebble"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type PebbleConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.grpc_address", ":8082")
	v.SetDefault("server.intent_rate", 10.0)
	v.SetDefault("server.intent_burst", 20)
	v.SetDefault("server.heartbeat", 30*time.Second)
	v.SetDefault("server.idle_room_ttl", 10*time.Minute)
	v.SetDefault("server.sweep_interval", time.Minute)

	v.SetDefault("game.min_players", 3)
	v.SetDefault("game.require_ready", true)
	v.SetDefault("game.role_reveal_time", 15*time.Second)
	v.SetDefault("game.night_time", 60*time.Second)
	v.SetDefault("game.day_time", 180*time.Second)
	v.SetDefault("game.voting_time", 60*time.Second)
	v.SetDefault("game.timer_resolution", 100*time.Millisecond)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.dbname", "mafia")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.pebble.path", "data/records")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig 读取 path 下的 config.yaml，文件不存在时使用默认值。
// 环境变量 MAFIA_SERVER_HTTP_ADDRESS 之类会覆盖文件中的配置。
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("mafia")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, err
	}
	return config, nil
}
