package movabletype

import (
	"strings"
	"time"

	"github.com/zero804/kblog"
	"github.com/zero804/kblog/xmlrpc"
)

// payloadFromPost は投稿から拡張フィールドを含むcontent構造体を組み立てる。
// MetaWeblogの基本フィールドに加え、抜粋（mt_excerpt）・続き（mt_text_more）・
// キーワード（mt_keywords）・スラッグ（wp_slug）を送信する。
func payloadFromPost(post *kblog.Post, create bool) xmlrpc.Value {
	categories := make([]string, 0, len(post.Categories))
	for _, cat := range post.Categories {
		categories = append(categories, cat.Name)
	}
	allow := func(b bool) xmlrpc.Value {
		if b {
			return xmlrpc.Int(1)
		}
		return xmlrpc.Int(0)
	}
	fields := map[string]xmlrpc.Value{
		"categories":        xmlrpc.Strings(categories),
		"description":       xmlrpc.String(post.Content),
		"title":             xmlrpc.String(post.Title),
		"mt_excerpt":        xmlrpc.String(post.Summary),
		"mt_text_more":      xmlrpc.String(post.AdditionalContent),
		"mt_keywords":       xmlrpc.String(strings.Join(post.Tags, ",")),
		"wp_slug":           xmlrpc.String(post.Slug),
		"mt_allow_comments": allow(post.IsCommentAllowed),
		"mt_allow_pings":    allow(post.IsTrackBackAllowed),
	}
	if create {
		fields["dateCreated"] = xmlrpc.DateTime(post.CreationDateTime.UTC())
	} else {
		fields["lastModified"] = xmlrpc.DateTime(post.ModificationDateTime.UTC())
	}
	return xmlrpc.Struct(fields)
}

// readPostFromStruct はレスポンスの構造体から投稿のフィールドを読み取る。
// MetaWeblogの基本フィールドに加えて拡張フィールドも読み取る。
// 存在し、かつ妥当な値のフィールドだけを上書きし、それ以外は既存の値を
// 保持する。戻り値がfalseになるのは入力が構造体でない場合だけである。
func readPostFromStruct(post *kblog.Post, v xmlrpc.Value) bool {
	if post == nil {
		return false
	}
	fields, ok := v.AsStruct()
	if !ok {
		return false
	}
	if created, ok := fieldTime(fields, "dateCreated"); ok {
		post.CreationDateTime = created
	}
	if modified, ok := fieldTime(fields, "lastModified"); ok {
		post.ModificationDateTime = modified
	}
	// 投稿IDは無条件に上書きする。数値で返すサーバーもあるため、
	// postidとpostIdの両方の綴りと整数型のIDを受け付ける
	id := fields["postid"].IDText()
	if id == "" {
		id = fields["postId"].IDText()
	}
	post.PostID = id
	if title := fieldText(fields, "title"); title != "" {
		post.Title = title
	}
	if description := fieldText(fields, "description"); description != "" {
		post.Content = description
	}
	if link := fieldText(fields, "link"); link != "" {
		post.Link = link
	}
	if permaLink := fieldText(fields, "permaLink"); permaLink != "" {
		post.PermaLink = permaLink
	}
	if excerpt := fieldText(fields, "mt_excerpt"); excerpt != "" {
		post.Summary = excerpt
	}
	if more := fieldText(fields, "mt_text_more"); more != "" {
		post.AdditionalContent = more
	}
	if keywords := fieldText(fields, "mt_keywords"); keywords != "" {
		tags := strings.Split(keywords, ",")
		post.Tags = post.Tags[:0]
		for _, tag := range tags {
			if tag = strings.TrimSpace(tag); tag != "" {
				post.Tags = append(post.Tags, tag)
			}
		}
	}
	if slug := fieldText(fields, "wp_slug"); slug != "" {
		post.Slug = slug
	}
	if cats, ok := fields["categories"]; ok {
		if names, ok := cats.StringList(); ok && len(names) > 0 {
			post.Categories = post.Categories[:0]
			for _, name := range names {
				post.Categories = append(post.Categories, kblog.Category{Name: name})
			}
		}
	}
	return true
}

// categoriesArg はmt.setPostCategoriesのカテゴリ配列を組み立てる。
// 先頭のカテゴリがプライマリとなる。
func categoriesArg(categories []kblog.Category) xmlrpc.Value {
	elems := make([]xmlrpc.Value, 0, len(categories))
	for i, cat := range categories {
		elems = append(elems, xmlrpc.Struct(map[string]xmlrpc.Value{
			"categoryName": xmlrpc.String(cat.Name),
			"isPrimary":    xmlrpc.Bool(i == 0),
		}))
	}
	return xmlrpc.Array(elems...)
}

func fieldText(fields map[string]xmlrpc.Value, name string) string {
	v, ok := fields[name]
	if !ok {
		return ""
	}
	return v.Text()
}

// fieldTime はマップのフィールドを日時として読み取る。
// 欠落・パース不能・ゼロ値の場合はfalseを返す。
func fieldTime(fields map[string]xmlrpc.Value, name string) (time.Time, bool) {
	v, present := fields[name]
	if !present {
		return time.Time{}, false
	}
	parsed, ok := v.AsTime()
	if !ok || parsed.IsZero() {
		return time.Time{}, false
	}
	return parsed, true
}
