package service

import (
	"time"

	"jonglog-service/internal/config"
	"jonglog-service/internal/metrics"
	"jonglog-service/internal/service/expense"
	"jonglog-service/internal/service/feed"
	"jonglog-service/internal/service/game"
	"jonglog-service/internal/service/league"
	"jonglog-service/internal/service/player"
	"jonglog-service/internal/service/session"
	"jonglog-service/internal/service/settings"
	"jonglog-service/internal/service/settlement"
	pkgAuth "jonglog-service/pkg/auth"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	Players     *player.Service
	Settings    *settings.Service
	Sessions    *session.Service
	Games       *game.Service
	Expenses    *expense.Service
	Settlements *settlement.Service
	Leagues     *league.Service

	Feed    feed.Broker
	Metrics *metrics.Metrics
	Signer  *pkgAuth.Signer
}

// NewContainer wires the services. rdb may be nil, in which case the live
// feed and pending tie-breaks stay in process.
func NewContainer(db *gorm.DB, rdb *redis.Client, conf *config.Config) *Container {
	m := metrics.New()

	var broker feed.Broker = feed.Nop{}
	if conf.Feed.Enabled {
		if rdb != nil {
			broker = feed.NewRedisBroker(rdb)
		} else {
			broker = feed.NewHub()
		}
	}

	var pending game.PendingStore
	if rdb != nil {
		pending = game.NewRedisPendingStore(rdb)
	} else {
		pending = game.NewMemoryPendingStore()
	}

	settingsSvc := settings.NewService(db, conf.Rules)
	settlementSvc := settlement.NewService(db, broker, m)

	return &Container{
		Players:  player.NewService(db),
		Settings: settingsSvc,
		Sessions: session.NewService(db, settingsSvc, settlementSvc),
		Games: game.NewService(db, game.Options{
			Pending:  pending,
			TTL:      time.Duration(conf.TieBreak.TTLSeconds) * time.Second,
			Observer: settlementSvc,
			Metrics:  m,
		}),
		Expenses:    expense.NewService(db, settlementSvc),
		Settlements: settlementSvc,
		Leagues:     league.NewService(db),
		Feed:        broker,
		Metrics:     m,
		Signer:      pkgAuth.NewSigner(conf.JWT.Secret, conf.JWT.Expire),
	}
}
