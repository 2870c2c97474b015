package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrMalformed はエンベロープまたはデータがデコードできないことを表す。
	ErrMalformed = errors.New("イベントの形式が不正です")
	// ErrUnknownTag はデコーダが登録されていないタグを受信したことを表す。
	ErrUnknownTag = errors.New("未登録のイベントタグです")
)

// decoders はタグからデータ型へのデコーダ表。
var decoders = map[Tag]func(json.RawMessage) (Event, error){
	TagCreateTicket:  decodeData[CreateTicketData],
	TagSendBasicMail: decodeData[SendBasicMailData],
}

// Tags はデコード可能なタグを辞書順で返す。
func Tags() []Tag {
	tags := make([]Tag, 0, len(decoders))
	for tag := range decoders {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Encode はイベントをエンベロープ形式のJSONにシリアライズする。
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}
	body, err := json.Marshal(Envelope{Service: e.Tag(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("エンベロープのシリアライズに失敗: %w", err)
	}
	return body, nil
}

// Decode はエンベロープ形式のJSONをイベントにデシリアライズする。
// 形式不正の場合はErrMalformed、未登録タグの場合はErrUnknownTagをラップして返す。
func Decode(body []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Service == "" {
		return nil, fmt.Errorf("%w: serviceフィールドがありません", ErrMalformed)
	}

	decode, ok := decoders[env.Service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTag, env.Service)
	}
	return decode(env.Data)
}

// decodeData はデータ部を型Tに厳密にデシリアライズする。
// 未知のフィールドを含むデータはタグに対して形が合わないものとして扱う。
func decodeData[T Event](raw json.RawMessage) (Event, error) {
	var data T
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: %s のdataがありません", ErrMalformed, data.Tag())
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %s のdataをデコードできません: %v", ErrMalformed, data.Tag(), err)
	}
	return data, nil
}
