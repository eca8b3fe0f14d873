package pickle

import (
	"fmt"

	"go.uber.org/zap"
)

// Classes the decoder handles itself instead of looking them up.
var (
	copyregReconstructor = Class{Module: "copyreg", Name: "_reconstructor"}
	copyRegReconstructor = Class{Module: "copy_reg", Name: "_reconstructor"}
	copyregNewobj        = Class{Module: "copyreg", Name: "__newobj__"}
	copyRegNewobj        = Class{Module: "copy_reg", Name: "__newobj__"}
	copyregNewobjEx      = Class{Module: "copyreg", Name: "__newobj_ex__"}
	builtinsObject       = Class{Module: "builtins", Name: "object"}
	builtinObject        = Class{Module: "__builtin__", Name: "object"}
)

// Push a global object (module.attr)
func (d *Decoder) global() error {
	module, err := d.cur.readLine()
	if err != nil {
		return err
	}
	name, err := d.cur.readLine()
	if err != nil {
		return err
	}
	d.stack.push(Class{Module: string(module), Name: string(name)})
	return nil
}

// Push a global object with module and name taken from the stack.
func (d *Decoder) stackGlobal() error {
	v, err := d.stack.popN(2)
	if err != nil {
		return err
	}
	module, ok := v[0].(string)
	if !ok {
		return malformed("STACK_GLOBAL: module is %T, not a string", v[0])
	}
	name, ok := v[1].(string)
	if !ok {
		return malformed("STACK_GLOBAL: name is %T, not a string", v[1])
	}
	d.stack.push(Class{Module: module, Name: name})
	return nil
}

func (d *Decoder) ext1() error {
	b, err := d.cur.readByte()
	if err != nil {
		return err
	}
	return d.extension(int(b))
}

func (d *Decoder) ext2() error {
	v, err := d.cur.readUint16()
	if err != nil {
		return err
	}
	return d.extension(int(v))
}

func (d *Decoder) ext4() error {
	v, err := d.cur.readUint32()
	if err != nil {
		return err
	}
	return d.extension(int(int32(v)))
}

// extension pushes the class registered under the copyreg extension code.
func (d *Decoder) extension(code int) error {
	cls, ok := d.registry.Extension(code)
	if !ok {
		return malformed("unregistered extension code %d", code)
	}
	d.stack.push(cls)
	return nil
}

// Apply callable to argtuple, both on stack
func (d *Decoder) reduce() error {
	v, err := d.stack.popN(2)
	if err != nil {
		return err
	}
	args, ok := v[1].(Tuple)
	if !ok {
		return malformed("REDUCE: arguments are %T, not a tuple", v[1])
	}
	obj, err := d.call(v[0], args)
	if err != nil {
		return err
	}
	d.stack.push(obj)
	return nil
}

// call invokes callable with args. The copyreg helpers that pickle emits
// for protocol 0 and 1 instances are unfolded here.
func (d *Decoder) call(callable any, args Tuple) (any, error) {
	cls, ok := callable.(Class)
	if !ok {
		return nil, malformed("callable is %T, not a class", callable)
	}

	switch cls {
	case copyregReconstructor, copyRegReconstructor:
		// _reconstructor(cls, base, state)
		if len(args) != 3 {
			return nil, malformed("%s: want 3 arguments, got %d", cls, len(args))
		}
		target, ok := args[0].(Class)
		if !ok {
			return nil, malformed("%s: class is %T", cls, args[0])
		}
		base, _ := args[1].(Class)
		var cargs Tuple
		if base != builtinsObject && base != builtinObject {
			if _, none := args[2].(None); !none {
				cargs = Tuple{args[2]}
			}
		}
		return d.instantiate(target, cargs, Dict{})

	case copyregNewobj, copyRegNewobj:
		// __newobj__(cls, *args)
		if len(args) == 0 {
			return nil, malformed("%s: missing class", cls)
		}
		target, ok := args[0].(Class)
		if !ok {
			return nil, malformed("%s: class is %T", cls, args[0])
		}
		return d.instantiate(target, args[1:], Dict{})

	case copyregNewobjEx:
		// __newobj_ex__(cls, args, kwargs)
		if len(args) != 3 {
			return nil, malformed("%s: want 3 arguments, got %d", cls, len(args))
		}
		return d.newobjFrom(args[0], args[1], args[2])
	}

	return d.instantiate(cls, args, Dict{})
}

// Build object by applying cls.__new__ to argtuple
func (d *Decoder) newobj() error {
	v, err := d.stack.popN(2)
	if err != nil {
		return err
	}
	cls, ok := v[0].(Class)
	if !ok {
		return malformed("NEWOBJ: class is %T", v[0])
	}
	args, ok := v[1].(Tuple)
	if !ok {
		return malformed("NEWOBJ: arguments are %T, not a tuple", v[1])
	}
	obj, err := d.instantiate(cls, args, Dict{})
	if err != nil {
		return err
	}
	d.stack.push(obj)
	return nil
}

// Build object: cls argv kw -> cls.__new__(*argv, **kw)
func (d *Decoder) newobjEx() error {
	v, err := d.stack.popN(3)
	if err != nil {
		return err
	}
	obj, err := d.newobjFrom(v[0], v[1], v[2])
	if err != nil {
		return err
	}
	d.stack.push(obj)
	return nil
}

func (d *Decoder) newobjFrom(xcls, xargs, xkwargs any) (any, error) {
	cls, ok := xcls.(Class)
	if !ok {
		return nil, malformed("NEWOBJ_EX: class is %T", xcls)
	}
	args, ok := xargs.(Tuple)
	if !ok {
		return nil, malformed("NEWOBJ_EX: arguments are %T, not a tuple", xargs)
	}
	kwargs, ok := xkwargs.(Dict)
	if !ok {
		return nil, malformed("NEWOBJ_EX: keyword arguments are %T, not a dict", xkwargs)
	}
	return d.instantiate(cls, args, kwargs)
}

// Build & push class instance; class name follows the opcode, arguments
// are above the mark.
func (d *Decoder) inst() error {
	module, err := d.cur.readLine()
	if err != nil {
		return err
	}
	name, err := d.cur.readLine()
	if err != nil {
		return err
	}
	args, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	obj, err := d.instantiate(Class{Module: string(module), Name: string(name)}, Tuple(args), Dict{})
	if err != nil {
		return err
	}
	d.stack.push(obj)
	return nil
}

// Build & push class instance; the class is the first item above the mark.
func (d *Decoder) obj() error {
	items, err := d.stack.popToMark()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: OBJ without class", ErrStackUnderflow)
	}
	cls, ok := items[0].(Class)
	if !ok {
		return malformed("OBJ: class is %T", items[0])
	}
	obj, err := d.instantiate(cls, Tuple(items[1:]), Dict{})
	if err != nil {
		return err
	}
	d.stack.push(obj)
	return nil
}

// instantiate builds an instance of cls. Registered classes go through
// their constructor; anything else becomes a *Record.
func (d *Decoder) instantiate(cls Class, args Tuple, kwargs Dict) (any, error) {
	if ctor, ok := d.registry.Resolve(cls.Module, cls.Name); ok {
		if kwargs.Len() != 0 {
			return nil, &ConstructorError{Class: cls, Err: fmt.Errorf("keyword arguments are not supported")}
		}
		obj, err := construct(ctor, args)
		if err != nil {
			return nil, &ConstructorError{Class: cls, Err: err}
		}
		return obj, nil
	}

	d.log.Debug("unknown class, keeping generic record",
		zap.Stringer("class", cls), zap.Int("args", len(args)))

	r := NewRecord(cls)
	if len(args) != 0 {
		r.SetAttr(AttrArgs, args)
	}
	if kwargs.Len() != 0 {
		r.SetAttr(AttrKwargs, kwargs)
	}
	return r, nil
}

// construct calls ctor, turning a panic in it into an error.
func construct(ctor Constructor, args Tuple) (obj any, err error) {
	defer func() {
		if r := recover(); r != nil {
			obj, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return ctor(args)
}

// Call __setstate__ or __dict__.update()
func (d *Decoder) build() error {
	state, err := d.stack.pop()
	if err != nil {
		return err
	}
	top, err := d.stack.peek()
	if err != nil {
		return err
	}

	switch obj := top.(type) {
	case StateSetter:
		if err := obj.SetState(state); err != nil {
			return fmt.Errorf("%w: BUILD %T: %w", ErrConstructorFailure, obj, err)
		}
	default:
		d.log.Warn("BUILD target cannot take state, state dropped",
			zap.String("type", fmt.Sprintf("%T", top)), zap.Int("offset", d.cur.pos))
	}
	return nil
}

// Push persistent object; id is taken from string arg
func (d *Decoder) loadPersid() error {
	pid, err := d.cur.readLine()
	if err != nil {
		return err
	}
	return d.persistent(string(pid))
}

// Push persistent object; id is taken from stack
func (d *Decoder) loadBinPersid() error {
	pid, err := d.stack.pop()
	if err != nil {
		return err
	}
	return d.persistent(pid)
}

// persistent resolves pid with the configured PersistentLoad and pushes
// the result.
func (d *Decoder) persistent(pid any) error {
	ref := Ref{Pid: pid}
	load := d.config.PersistentLoad
	if load == nil {
		return fmt.Errorf("%w: %s", ErrUnresolvedPersistentID, Repr(pid))
	}
	obj, err := load(ref)
	if err != nil {
		return fmt.Errorf("pickle: load persistent %s: %w", Repr(pid), err)
	}
	if obj == nil {
		obj = ref
	}
	d.stack.push(obj)
	return nil
}
