package device

// Resources tracks every handle acquired during one dispatch call.
//
// Fields are filled in acquisition order as each step succeeds. Release
// frees whatever is present in reverse order (buffers, kernel, program,
// queue, context) so a partially built set needs no special casing:
//
//	var res device.Resources
//	defer res.Release()
type Resources struct {
	Context Context
	Queue   Queue
	Program Program
	Kernel  Kernel
	Buffers []Buffer
}

// Release frees all held handles and clears them. It is safe to call on a
// nil receiver, on a partially populated set, and more than once.
func (r *Resources) Release() {
	if r == nil {
		return
	}
	for i, b := range r.Buffers {
		if b != nil {
			b.Release()
			r.Buffers[i] = nil
		}
	}
	r.Buffers = nil
	if r.Kernel != nil {
		r.Kernel.Release()
		r.Kernel = nil
	}
	if r.Program != nil {
		r.Program.Release()
		r.Program = nil
	}
	if r.Queue != nil {
		r.Queue.Release()
		r.Queue = nil
	}
	if r.Context != nil {
		r.Context.Release()
		r.Context = nil
	}
}

// AddBuffer records b so it is released with the set.
func (r *Resources) AddBuffer(b Buffer) {
	r.Buffers = append(r.Buffers, b)
}
