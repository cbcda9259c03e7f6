// Package protos holds the protocol buffer messages of the TensorFlow object detection API that
// are written by the converter.
package protos

import (
	"github.com/golang/protobuf/proto"
)

// StringIntLabelMapItem maps a class name to its integer ID. IDs start at 1; 0 is reserved for
// the background class.
type StringIntLabelMapItem struct {
	Name        *string `protobuf:"bytes,1,opt,name=name" json:"name,omitempty"`
	Id          *int32  `protobuf:"varint,2,opt,name=id" json:"id,omitempty"`
	DisplayName *string `protobuf:"bytes,3,opt,name=display_name,json=displayName" json:"display_name,omitempty"`
}

func (m *StringIntLabelMapItem) Reset()         { *m = StringIntLabelMapItem{} }
func (m *StringIntLabelMapItem) String() string { return proto.CompactTextString(m) }
func (*StringIntLabelMapItem) ProtoMessage()    {}

func (m *StringIntLabelMapItem) GetName() string {
	if m != nil && m.Name != nil {
		return *m.Name
	}
	return ""
}

func (m *StringIntLabelMapItem) GetId() int32 {
	if m != nil && m.Id != nil {
		return *m.Id
	}
	return 0
}

func (m *StringIntLabelMapItem) GetDisplayName() string {
	if m != nil && m.DisplayName != nil {
		return *m.DisplayName
	}
	return ""
}

// StringIntLabelMap is the label map read by the TensorFlow object detection API.
type StringIntLabelMap struct {
	Item []*StringIntLabelMapItem `protobuf:"bytes,1,rep,name=item" json:"item,omitempty"`
}

func (m *StringIntLabelMap) Reset()         { *m = StringIntLabelMap{} }
func (m *StringIntLabelMap) String() string { return proto.CompactTextString(m) }
func (*StringIntLabelMap) ProtoMessage()    {}

func (m *StringIntLabelMap) GetItem() []*StringIntLabelMapItem {
	if m != nil {
		return m.Item
	}
	return nil
}
