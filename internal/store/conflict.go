package store

import "gorm.io/gorm/clause"

func onConflictDoNothing() clause.OnConflict {
	return clause.OnConflict{DoNothing: true}
}
