package livejournal

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/zero804/kblog"
	"github.com/zero804/kblog/xmlrpc"
)

// eventTimeLayout はLiveJournalのeventtimeの書式。タイムゾーン情報を持たない。
const eventTimeLayout = "2006-01-02 15:04:05"

// md5hex はMD5ハッシュの16進文字列を返す。
func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// authFields はチャレンジ・レスポンス認証のフィールドを組み立てる。
// 応答はmd5hex(challenge + md5hex(password))であり、パスワードは送信しない。
func authFields(username, password, challenge string) map[string]xmlrpc.Value {
	return map[string]xmlrpc.Value{
		"username":       xmlrpc.String(username),
		"auth_method":    xmlrpc.String("challenge"),
		"auth_challenge": xmlrpc.String(challenge),
		"auth_response":  xmlrpc.String(md5hex(challenge + md5hex(password))),
		"ver":            xmlrpc.Int(1),
	}
}

// baseFields は認証フィールドのコピーを返す。
func baseFields(auth map[string]xmlrpc.Value) map[string]xmlrpc.Value {
	fields := make(map[string]xmlrpc.Value, len(auth)+8)
	for k, v := range auth {
		fields[k] = v
	}
	return fields
}

// eventFields は投稿からpostevent/editeventのフィールドを組み立てる。
func eventFields(post *kblog.Post, auth map[string]xmlrpc.Value, loc *time.Location) map[string]xmlrpc.Value {
	fields := baseFields(auth)
	fields["event"] = xmlrpc.String(post.Content)
	fields["subject"] = xmlrpc.String(post.Title)
	fields["lineendings"] = xmlrpc.String("pc")
	if post.IsPrivate {
		fields["security"] = xmlrpc.String("private")
	} else {
		fields["security"] = xmlrpc.String("public")
	}
	when := post.CreationDateTime
	if when.IsZero() {
		when = time.Now()
	}
	when = when.In(loc)
	fields["year"] = xmlrpc.Int(int64(when.Year()))
	fields["mon"] = xmlrpc.Int(int64(when.Month()))
	fields["day"] = xmlrpc.Int(int64(when.Day()))
	fields["hour"] = xmlrpc.Int(int64(when.Hour()))
	fields["min"] = xmlrpc.Int(int64(when.Minute()))

	props := map[string]xmlrpc.Value{}
	if post.Mood != "" {
		props["current_mood"] = xmlrpc.String(post.Mood)
	}
	if post.Music != "" {
		props["current_music"] = xmlrpc.String(post.Music)
	}
	if len(post.Tags) > 0 {
		props["taglist"] = xmlrpc.String(strings.Join(post.Tags, ","))
	}
	if len(props) > 0 {
		fields["props"] = xmlrpc.Struct(props)
	}
	return fields
}

// eventArg はposteventの引数を組み立てる。
func eventArg(post *kblog.Post, auth map[string]xmlrpc.Value, loc *time.Location) xmlrpc.Value {
	return xmlrpc.Struct(eventFields(post, auth, loc))
}

// eventList はgeteventsのレスポンスからeventsの配列を取り出す。
func eventList(v xmlrpc.Value) ([]xmlrpc.Value, bool) {
	events, ok := v.Field("events")
	if !ok {
		return nil, false
	}
	return events.AsArray()
}

// readPostFromEvent はgeteventsのイベント構造体から投稿のフィールドを
// 読み取る。存在するフィールドだけを上書きする。
func readPostFromEvent(post *kblog.Post, v xmlrpc.Value) bool {
	if post == nil {
		return false
	}
	fields, ok := v.AsStruct()
	if !ok {
		return false
	}
	if id, ok := fields["itemid"]; ok {
		post.PostID = id.IDText()
	}
	if subject, ok := fields["subject"]; ok {
		post.Title = subject.Text()
	}
	if event, ok := fields["event"]; ok {
		post.Content = event.Text()
	}
	if url, ok := fields["url"]; ok {
		post.Link = url.Text()
	}
	if eventtime, ok := fields["eventtime"]; ok {
		if t, err := time.Parse(eventTimeLayout, eventtime.Text()); err == nil {
			post.CreationDateTime = t
		}
	}
	if security, ok := fields["security"]; ok {
		post.IsPrivate = security.Text() == "private"
	}
	if props, ok := fields["props"]; ok {
		if p, ok := props.AsStruct(); ok {
			if mood, ok := p["current_mood"]; ok {
				post.Mood = mood.Text()
			}
			if music, ok := p["current_music"]; ok {
				post.Music = music.Text()
			}
			if taglist, ok := p["taglist"]; ok {
				post.Tags = post.Tags[:0]
				for _, tag := range strings.Split(taglist.Text(), ",") {
					if tag = strings.TrimSpace(tag); tag != "" {
						post.Tags = append(post.Tags, tag)
					}
				}
			}
		}
	}
	return true
}

// readLoginResult はLJ.XMLRPC.loginのレスポンスからユーザー情報と
// ムード一覧を読み取る。
func readLoginResult(v xmlrpc.Value) (kblog.UserInfo, map[int64]string) {
	info := kblog.UserInfo{
		Nickname: v.FieldText("fullname"),
		UserID:   v.FieldIDText("userid"),
	}
	moods := make(map[int64]string)
	list, ok := v.Field("moods")
	if !ok {
		return info, moods
	}
	entries, ok := list.AsArray()
	if !ok {
		return info, moods
	}
	for _, e := range entries {
		fields, ok := e.AsStruct()
		if !ok {
			continue
		}
		id, ok := fields["id"]
		if !ok {
			continue
		}
		numeric, ok := id.AsInt()
		if !ok {
			continue
		}
		moods[numeric] = fieldText(fields, "name")
	}
	return info, moods
}

func fieldText(fields map[string]xmlrpc.Value, name string) string {
	v, ok := fields[name]
	if !ok {
		return ""
	}
	return v.Text()
}
