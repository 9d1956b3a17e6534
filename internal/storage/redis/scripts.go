package redis

const (
	// putCacheEntryScript atomically writes a cache entry and its index
	// membership so a crash between the two cannot leave an unindexed
	// value behind.
	putCacheEntryScript = `
local entry_key = KEYS[1]   -- mediagate:cache:{urlKey}
local index_set = KEYS[2]   -- mediagate:cache:index

local url_key = ARGV[1]
local payload = ARGV[2]
local ttl_seconds = tonumber(ARGV[3])

redis.call('SET', entry_key, payload)
redis.call('SADD', index_set, url_key)

-- Belt-and-braces expiry: staleness is evaluated lazily on read, but
-- let Redis reclaim entries that nothing ever reads again. Keep the
-- value around for twice the logical TTL so a sweep can still observe
-- and report the stale entry.
if ttl_seconds > 0 then
  redis.call('EXPIRE', entry_key, ttl_seconds * 2)
end

return 1
`

	// deleteCacheEntryScript removes an entry and its index membership.
	deleteCacheEntryScript = `
local entry_key = KEYS[1]
local index_set = KEYS[2]

local url_key = ARGV[1]

local removed = redis.call('DEL', entry_key)
redis.call('SREM', index_set, url_key)

return removed
`
)
