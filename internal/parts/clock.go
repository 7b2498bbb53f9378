package parts

import "time"

var nowMillisFunc = func() int64 { return time.Now().UnixMilli() }

func nowMillis() int64 { return nowMillisFunc() }
