package config

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/grussorusso/digestledge/utils"
)

func TestGettersFallBackToDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	utils.AssertEquals(t, 1323, GetInt(API_PORT, 1323))
	utils.AssertEquals(t, int64(7), GetInt64(SIZE_THRESHOLD, 7))
	utils.AssertEquals(t, "info", GetString(LOG_LEVEL, "info"))
	utils.AssertTrue(t, GetBool(METRICS_ENABLED, true))
	utils.AssertSliceEquals(t, []string{"sg-x"}, GetStringSlice(INSTANCE_SECURITY_GROUPS, []string{"sg-x"}))

	viper.Set(API_PORT, 8080)
	viper.Set(METRICS_ENABLED, false)
	utils.AssertEquals(t, 8080, GetInt(API_PORT, 1323))
	utils.AssertFalse(t, GetBool(METRICS_ENABLED, true))
}
