package redis

import goredis "github.com/redis/go-redis/v9"

// Replies of castVoteScript and createPollScript.
const (
	statusOK             = "OK"
	statusNotFound       = "NOT_FOUND"
	statusInactive       = "INACTIVE"
	statusExpired        = "EXPIRED"
	statusOptionNotFound = "OPTION_NOT_FOUND"
	statusAlreadyVoted   = "ALREADY_VOTED"
	statusExists         = "EXISTS"
)

// castVoteScript runs every check and the increment as one Redis command,
// so a rejected ballot writes nothing and concurrent ballots never lose
// increments.
// KEYS: [1]=poll hash, [2]=votes hash, [3]=voters set
// ARGV: [1]=option id, [2]=voter id (may be empty), [3]=now_ms
// Reply: {status} or {OK, meta, active, expires_at, votes...}
var castVoteScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {'NOT_FOUND'}
end
if redis.call('HGET', KEYS[1], 'active') ~= '1' then
  return {'INACTIVE'}
end
local exp = redis.call('HGET', KEYS[1], 'expires_at')
if exp and exp ~= '' and tonumber(ARGV[3]) > tonumber(exp) then
  return {'EXPIRED'}
end
if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 0 then
  return {'OPTION_NOT_FOUND'}
end
if ARGV[2] ~= '' and redis.call('SADD', KEYS[3], ARGV[2]) == 0 then
  return {'ALREADY_VOTED'}
end
redis.call('HINCRBY', KEYS[2], ARGV[1], 1)
local poll = redis.call('HMGET', KEYS[1], 'meta', 'active', 'expires_at')
return {'OK', poll[1], poll[2], poll[3] or '', redis.call('HGETALL', KEYS[2])}
`)

// createPollScript refuses to overwrite an existing poll.
// KEYS: [1]=poll hash, [2]=votes hash, [3]=poll index
// ARGV: [1]=meta, [2]=active, [3]=expires_at, [4]=created_ms, [5]=poll id,
// then option id / initial count pairs.
var createPollScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 'EXISTS'
end
redis.call('HSET', KEYS[1], 'meta', ARGV[1], 'active', ARGV[2], 'expires_at', ARGV[3])
for i = 6, #ARGV, 2 do
  redis.call('HSET', KEYS[2], ARGV[i], ARGV[i + 1])
end
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[5])
return 'OK'
`)

// tokenBucketScript takes one token from a bucket that refills continuously.
// KEYS: [1]=bucket hash
// ARGV: [1]=now_ms, [2]=tokens per second, [3]=burst, [4]=ttl_ms
// Reply: 1 when a token was taken, 0 otherwise
var tokenBucketScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = burst
  ts = now
end
if now > ts then
  tokens = math.min(burst, tokens + (now - ts) * rate / 1000)
  ts = now
end
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', tostring(ts))
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return allowed
`)
