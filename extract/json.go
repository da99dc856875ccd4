package extract

import (
	"encoding/json"
)

// jsonFieldAliases maps profile keys to the property names user-JSON
// endpoints commonly use for them, in preference order.
var jsonFieldAliases = map[string][]string{
	KeyDisplayName: {"display_name", "name", "full_name", "displayName", "title"},
	KeyAvatarURL:   {"avatar_url", "avatar", "profile_image_url", "image", "icon_img", "picture"},
	KeyBio:         {"bio", "description", "about", "summary", "public_description"},
	KeyURL:         {"html_url", "url", "profile_url", "link"},
	KeyCreatedAt:   {"created_at", "created", "join_date", "created_utc"},
}

var jsonCountAliases = map[string][]string{
	KeyFollowers:   {"followers", "followers_count", "follower_count"},
	KeyFollowing:   {"following", "following_count", "friends_count"},
	KeySubscribers: {"subscribers", "subscriber_count", "subscribers_count", "members"},
}

// FromJSON extracts profile fields from a user-JSON endpoint body. The
// object is searched one level deep as well, covering the common
// `{"data": {...}}` envelope. Invalid JSON yields an empty map.
func FromJSON(body []byte) map[string]any {
	fields := map[string]any{}
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return fields
	}
	harvest(fields, root)
	for _, v := range root {
		if nested, ok := v.(map[string]any); ok {
			harvest(fields, nested)
		}
	}
	return fields
}

func harvest(fields map[string]any, obj map[string]any) {
	for key, aliases := range jsonFieldAliases {
		for _, a := range aliases {
			if s, ok := obj[a].(string); ok && s != "" {
				if key == KeyBio {
					s = SanitizeBio(s)
				}
				setIfEmpty(fields, key, s)
				break
			}
		}
	}
	for key, aliases := range jsonCountAliases {
		for _, a := range aliases {
			if n, ok := numberField(obj[a]); ok {
				setIfEmpty(fields, key, n)
				break
			}
		}
	}
}

func numberField(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case string:
		return ParseHumanCount(t)
	}
	return 0, false
}
