package di

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Params 调用方提供的辅助参数，按构造参数名索引。
type Params map[string]any

// HashParams 计算辅助参数的确定性哈希。
//
// 键按字典序处理；指针、通道、函数按身份参与哈希；
// 切片、数组、映射和结构体递归展开；其余值按字面值参与哈希。
// 映射条目按键的类型与值排序，自引用的切片或映射只展开一次。
// 空参数与 nil 参数的哈希相同。
func HashParams(p Params) uint64 {
	if len(p) == 0 {
		return 0
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := xxhash.New()
	h := &hasher{visiting: make(map[visit]bool)}
	for _, k := range keys {
		d.WriteString(k)
		d.WriteString(":::")
		h.value(d, reflect.ValueOf(p[k]))
		d.WriteString(";")
	}
	return d.Sum64()
}

type hashWriter interface {
	io.Writer
	io.StringWriter
}

// visit 标识一个正在展开的切片或映射
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

type hasher struct {
	visiting map[visit]bool
}

// enter 在切片或映射已处于展开路径上时返回 false
func (h *hasher) enter(v reflect.Value) (visit, bool) {
	if v.IsNil() {
		return visit{}, true
	}
	k := visit{ptr: v.Pointer(), typ: v.Type(), len: v.Len()}
	if h.visiting[k] {
		return k, false
	}
	h.visiting[k] = true
	return k, true
}

func (h *hasher) leave(k visit) {
	delete(h.visiting, k)
}

func (h *hasher) value(w hashWriter, v reflect.Value) {
	if !v.IsValid() {
		w.WriteString("nil")
		return
	}
	w.WriteString(v.Type().String())
	w.WriteString("=")

	switch v.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		w.WriteString("@")
		w.WriteString(strconv.FormatUint(uint64(v.Pointer()), 16))
	case reflect.Interface:
		h.value(w, v.Elem())
	case reflect.Slice:
		k, ok := h.enter(v)
		if !ok {
			w.WriteString("<cycle>")
			return
		}
		defer h.leave(k)
		h.elements(w, v)
	case reflect.Array:
		h.elements(w, v)
	case reflect.Map:
		k, ok := h.enter(v)
		if !ok {
			w.WriteString("<cycle>")
			return
		}
		defer h.leave(k)
		h.entries(w, v)
	case reflect.Struct:
		w.WriteString("{")
		for i := 0; i < v.NumField(); i++ {
			h.value(w, v.Field(i))
			w.WriteString(",")
		}
		w.WriteString("}")
	case reflect.String:
		w.WriteString(strconv.Quote(v.String()))
	case reflect.Bool:
		w.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		w.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		w.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		w.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	default:
		fmt.Fprintf(w, "%v", safeInterface(v))
	}
}

func (h *hasher) elements(w hashWriter, v reflect.Value) {
	w.WriteString("[")
	for i := 0; i < v.Len(); i++ {
		h.value(w, v.Index(i))
		w.WriteString(",")
	}
	w.WriteString("]")
}

// entries 把每个条目完整展开成文本后排序，键的类型参与比较
func (h *hasher) entries(w hashWriter, v reflect.Value) {
	entries := make([]string, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		var sb strings.Builder
		h.value(&sb, iter.Key())
		sb.WriteString(":::")
		h.value(&sb, iter.Value())
		entries = append(entries, sb.String())
	}
	sort.Strings(entries)
	w.WriteString("{")
	for _, e := range entries {
		w.WriteString(e)
		w.WriteString(",")
	}
	w.WriteString("}")
}

// safeInterface 对未导出字段退化为格式化 Value 本身
func safeInterface(v reflect.Value) any {
	if v.CanInterface() {
		return v.Interface()
	}
	return v
}
