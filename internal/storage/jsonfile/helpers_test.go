package jsonfile

import "github.com/tidwall/gjson"

func gjsonValue(raw string) gjson.Result {
	return gjson.Parse(raw)
}
