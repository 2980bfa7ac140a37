package constant

// Participant roles
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Deletion placeholders shown instead of removed content
const (
	DeletedForAllText = "This message was deleted"
	DeletedForMeText  = "You deleted this message"
)

// Storage drivers
const (
	StorageDriverMySQL  = "mysql"
	StorageDriverMemory = "memory"
)

// Call channel prefix, kept apart from conversation room ids
const CallChannelPrefix = "call:"

// CallChannel returns the signaling channel key for a call
func CallChannel(callId string) string {
	return CallChannelPrefix + callId
}

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyOnline   = "online:%s"    // online:{user_id}
	redisKeyLastSeen = "last_seen:%s" // last_seen:{user_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "parley:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyOnline() string   { return redisKeyPrefix + redisKeyOnline }
func RedisKeyLastSeen() string { return redisKeyPrefix + redisKeyLastSeen }
